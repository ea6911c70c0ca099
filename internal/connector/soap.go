package connector

import (
	"context"
	"io"

	"tuleapsync/internal/domain"
	"tuleapsync/internal/rest"
	"tuleapsync/internal/soap"
)

// ImportSOAP converts the artifacts of a saved SOAP getArtifacts response
// and hands them to collector like a query would. Trackers are read from
// the server; comments are not part of that response and stay empty.
func (c *Connector) ImportSOAP(ctx context.Context, r io.Reader, collector Collector) (QueryResult, error) {
	raw, err := soap.DecodeArtifacts(r)
	if err != nil {
		return QueryResult{}, err
	}
	parser := soap.Parser{}
	if srv, ok := c.Users.(*domain.Server); ok {
		parser.Server = srv
	}
	cache := c.newTrackers()
	artifacts := make([]*domain.Artifact, 0, len(raw))
	var res QueryResult
	for _, in := range raw {
		if err := ctx.Err(); err != nil {
			return res, &rest.CanceledError{Err: err}
		}
		tr, err := cache.get(ctx, in.TrackerID)
		if err != nil {
			if ctx.Err() != nil {
				return res, &rest.CanceledError{Err: ctx.Err()}
			}
			c.logger().Printf("soap: skipped artifact %d: %v", in.ArtifactID, err)
			res.Failures = append(res.Failures, Failure{ArtifactID: in.ArtifactID, Err: err})
			continue
		}
		artifacts = append(artifacts, parser.ParseArtifact(tr, in, nil))
	}
	collected, err := c.collectWith(ctx, cache, artifacts, collector)
	collected.Failures = append(res.Failures, collected.Failures...)
	return collected, err
}
