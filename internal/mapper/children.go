package mapper

import (
	"strconv"

	"tuleapsync/internal/domain"
	"tuleapsync/internal/taskdata"
)

func (m *Mapper) commentAttribute(td *taskdata.TaskData, number int, c domain.Comment) {
	attr := td.CreateAttribute(taskdata.PrefixComment + strconv.Itoa(number))
	attr.Meta = taskdata.Metadata{Type: taskdata.TypeComment, ReadOnly: true}
	attr.SetValue(strconv.Itoa(number))
	attr.CreateChild(taskdata.CommentNumber).SetValue(strconv.Itoa(number))
	author := attr.CreateChild(taskdata.CommentAuthor)
	author.Meta = taskdata.Metadata{Type: taskdata.TypePerson}
	author.SetValue(strconv.Itoa(c.Author.ID))
	author.PutOption(strconv.Itoa(c.Author.ID), c.Author.DisplayName())
	if v := millis(c.Date); v != "" {
		attr.CreateChild(taskdata.CommentDate).SetValue(v)
	}
	text := attr.CreateChild(taskdata.CommentText)
	text.Meta = taskdata.Metadata{Type: taskdata.TypeLongRichText, ReadOnly: true}
	text.SetValue(c.Body)
}

func (m *Mapper) comment(attr *taskdata.Attribute) (domain.Comment, bool) {
	if _, ok := attr.Child(taskdata.CommentText); !ok {
		return domain.Comment{}, false
	}
	c := domain.Comment{
		Author: m.resolveUser(attr.ChildValue(taskdata.CommentAuthor)),
		Date:   fromMillis(attr.ChildValue(taskdata.CommentDate)),
		Body:   attr.ChildValue(taskdata.CommentText),
	}
	if c.Author.ID == 0 {
		c.Author = domain.Anonymous
	}
	return c, true
}

// attachmentAttributes numbers attachments after the ones already in td, so
// the attachments of several file fields share one sequence.
func (m *Mapper) attachmentAttributes(td *taskdata.TaskData, v domain.AttachmentValue) {
	next := 1
	for {
		if _, ok := td.Attribute(taskdata.PrefixAttachment + strconv.Itoa(next)); !ok {
			break
		}
		next++
	}
	for _, att := range v.Attachments {
		attr := td.CreateAttribute(taskdata.PrefixAttachment + strconv.Itoa(next))
		next++
		attr.Meta = taskdata.Metadata{Type: taskdata.TypeAttachment, ReadOnly: true}
		attr.SetValue(strconv.Itoa(att.ID))
		attr.CreateChild(taskdata.AttachmentID).SetValue(strconv.Itoa(att.ID))
		attr.CreateChild(taskdata.AttachmentFilename).SetValue(att.Filename)
		attr.CreateChild(taskdata.AttachmentSize).SetValue(strconv.FormatInt(att.Size, 10))
		attr.CreateChild(taskdata.AttachmentDescription).SetValue(att.Description)
		attr.CreateChild(taskdata.AttachmentContentType).SetValue(att.ContentType)
		author := attr.CreateChild(taskdata.AttachmentAuthor)
		author.Meta = taskdata.Metadata{Type: taskdata.TypePerson}
		author.SetValue(strconv.Itoa(att.Submitter.ID))
		author.PutOption(strconv.Itoa(att.Submitter.ID), att.Submitter.DisplayName())
		attr.CreateChild(taskdata.AttachmentField).SetValue(strconv.Itoa(v.Field))
	}
}

// addAttachment appends the attachment described by attr to the value of its
// file field.
func (m *Mapper) addAttachment(a *domain.Artifact, attr *taskdata.Attribute) {
	fieldID, err := strconv.Atoi(attr.ChildValue(taskdata.AttachmentField))
	if err != nil {
		return
	}
	if m.Tracker != nil {
		if _, ok := m.Tracker.Field(fieldID); !ok {
			return
		}
	}
	id, err := strconv.Atoi(attr.ChildValue(taskdata.AttachmentID))
	if err != nil {
		return
	}
	size, _ := strconv.ParseInt(attr.ChildValue(taskdata.AttachmentSize), 10, 64)
	att := domain.Attachment{
		ID:          id,
		Filename:    attr.ChildValue(taskdata.AttachmentFilename),
		Submitter:   m.resolveUser(attr.ChildValue(taskdata.AttachmentAuthor)),
		Size:        size,
		Description: attr.ChildValue(taskdata.AttachmentDescription),
		ContentType: attr.ChildValue(taskdata.AttachmentContentType),
	}
	value := domain.AttachmentValue{Field: fieldID}
	if cur, ok := a.Value(fieldID); ok {
		if av, ok := cur.(domain.AttachmentValue); ok {
			value = av
		}
	}
	value.Attachments = append(value.Attachments, att)
	a.SetValue(value)
}
