package soap

import (
	"encoding/xml"
	"fmt"
	"html"
	"io"
	"time"

	"tuleapsync/internal/domain"
)

// Wire types of the Tuleap SOAP tracker API. Dates are epoch seconds and
// values are keyed by field name.

type BindValue struct {
	ID    int    `xml:"bind_value_id"`
	Label string `xml:"bind_value_label,omitempty"`
}

type FileInfo struct {
	ID          int    `xml:"id"`
	SubmittedBy int    `xml:"submitted_by"`
	Description string `xml:"description"`
	Filename    string `xml:"filename"`
	FileSize    int64  `xml:"filesize"`
	FileType    string `xml:"filetype"`
}

type FieldValue struct {
	Value      string      `xml:"value,omitempty"`
	BindValues []BindValue `xml:"bind_value>item,omitempty"`
	// FileInfo is nil when the server sent no file info at all.
	FileInfo *FileInfoList `xml:"file_info,omitempty"`
}

type FileInfoList struct {
	Items []FileInfo `xml:"item"`
}

type ArtifactFieldValue struct {
	FieldName  string     `xml:"field_name"`
	FieldLabel string     `xml:"field_label,omitempty"`
	FieldValue FieldValue `xml:"field_value"`
}

type Artifact struct {
	ArtifactID     int                  `xml:"artifact_id"`
	TrackerID      int                  `xml:"tracker_id"`
	SubmittedBy    int                  `xml:"submitted_by"`
	SubmittedOn    int64                `xml:"submitted_on"`
	LastUpdateDate int64                `xml:"last_update_date"`
	Values         []ArtifactFieldValue `xml:"value>item"`
}

type ArtifactComments struct {
	SubmittedBy int    `xml:"submitted_by"`
	Email       string `xml:"email"`
	SubmittedOn int64  `xml:"submitted_on"`
	Body        string `xml:"body"`
}

type envelope struct {
	XMLName xml.Name `xml:"Envelope"`
	Body    struct {
		Response struct {
			Return struct {
				Total     int                `xml:"total_artifacts_number"`
				Artifacts []Artifact         `xml:"artifacts>item"`
				Comments  []ArtifactComments `xml:"item"`
			} `xml:"return"`
		} `xml:",any"`
	} `xml:"Body"`
}

// DecodeArtifacts reads the artifacts of a getArtifacts response envelope.
func DecodeArtifacts(r io.Reader) ([]Artifact, error) {
	var env envelope
	if err := xml.NewDecoder(r).Decode(&env); err != nil {
		return nil, fmt.Errorf("decode soap artifacts: %w", err)
	}
	return env.Body.Response.Return.Artifacts, nil
}

// DecodeComments reads the comments of a getArtifactComments response
// envelope.
func DecodeComments(r io.Reader) ([]ArtifactComments, error) {
	var env envelope
	if err := xml.NewDecoder(r).Decode(&env); err != nil {
		return nil, fmt.Errorf("decode soap comments: %w", err)
	}
	return env.Body.Response.Return.Comments, nil
}

// Parser turns SOAP artifacts into domain artifacts. Server resolves the
// users referenced by attachments and comments; it may be nil.
type Parser struct {
	Server *domain.Server
}

func (p Parser) user(id int, email string) domain.User {
	if p.Server != nil {
		if u, ok := p.Server.User(id); ok {
			return *u
		}
	}
	if id == 0 {
		u := domain.Anonymous
		if email != "" {
			u.Email = email
		}
		return u
	}
	return domain.User{ID: id, Email: email}
}

func epoch(sec int64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0)
}

// ParseArtifact maps in onto tracker. Values naming unknown fields and values
// of server computed fields are dropped.
func (p Parser) ParseArtifact(tracker *domain.Tracker, in Artifact, comments []ArtifactComments) *domain.Artifact {
	a := domain.NewArtifact(in.ArtifactID, domain.Ref{ID: in.TrackerID}, domain.Ref{})
	if tracker != nil {
		a.Tracker = domain.Ref{ID: tracker.ID, URI: tracker.URI}
		a.Project = tracker.Project
	}
	a.SubmittedBy = in.SubmittedBy
	a.SubmittedOn = epoch(in.SubmittedOn)
	a.LastModified = epoch(in.LastUpdateDate)
	for _, c := range comments {
		a.Comments = append(a.Comments, domain.Comment{
			Author: p.user(c.SubmittedBy, c.Email),
			Date:   epoch(c.SubmittedOn),
			Body:   html.UnescapeString(c.Body),
		})
	}
	if tracker == nil {
		return a
	}
	for _, v := range in.Values {
		f, ok := tracker.FieldByName(v.FieldName)
		if !ok {
			continue
		}
		id := domain.Base(f).ID
		switch f.(type) {
		case *domain.SelectBoxField:
			var ids []int
			if len(v.FieldValue.BindValues) > 0 {
				ids = []int{v.FieldValue.BindValues[0].ID}
			}
			a.SetValue(domain.BoundValue{Field: id, ValueIDs: ids})
		case *domain.MultiSelectBoxField:
			var ids []int
			for _, bv := range v.FieldValue.BindValues {
				ids = append(ids, bv.ID)
			}
			a.SetValue(domain.BoundValue{Field: id, ValueIDs: ids})
		case *domain.FileUploadField:
			val := domain.AttachmentValue{Field: id}
			if v.FieldValue.FileInfo != nil {
				for _, fi := range v.FieldValue.FileInfo.Items {
					val.Attachments = append(val.Attachments, domain.Attachment{
						ID:          fi.ID,
						Filename:    fi.Filename,
						Submitter:   p.user(fi.SubmittedBy, ""),
						Size:        fi.FileSize,
						Description: fi.Description,
						ContentType: fi.FileType,
					})
				}
			}
			a.SetValue(val)
		case *domain.DynamicField:
		case *domain.StringField, *domain.IntegerField:
			a.SetValue(domain.LiteralValue{Field: id, Value: v.FieldValue.Value})
		}
	}
	return a
}

// Values renders the editable values of a for an add or update call.
// Attachments travel through a dedicated call and are left out.
func Values(tracker *domain.Tracker, a *domain.Artifact) []ArtifactFieldValue {
	if tracker == nil {
		return nil
	}
	var out []ArtifactFieldValue
	for _, v := range a.Values() {
		f, ok := tracker.Field(v.FieldID())
		if !ok {
			continue
		}
		b := domain.Base(f)
		fv := ArtifactFieldValue{FieldName: b.Name, FieldLabel: b.Label}
		switch val := v.(type) {
		case domain.LiteralValue:
			fv.FieldValue.Value = val.Value
		case domain.BoundValue:
			for _, id := range val.ValueIDs {
				fv.FieldValue.BindValues = append(fv.FieldValue.BindValues, BindValue{ID: id})
			}
		case domain.AttachmentValue:
			continue
		}
		if _, ok := f.(*domain.DynamicField); ok {
			continue
		}
		out = append(out, fv)
	}
	return out
}
