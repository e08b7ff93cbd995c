package approval

import (
	"fmt"

	"permission-gate/internal/filter"
)

// Request is the part of a smart action call the approval engine reads,
// taken from the JSON:API parameters `data.attributes`.
type Request struct {
	Selector              filter.Selector
	SignedApprovalRequest string
	RequesterID           string
	Timezone              string
}

// ParseRequest extracts a Request from action parameters. Parameters without
// data.attributes yield a request targeting no records.
func ParseRequest(params map[string]any) (Request, error) {
	var req Request
	if tz, ok := params["timezone"].(string); ok {
		req.Timezone = tz
	}

	attrs, err := attributes(params)
	if err != nil || attrs == nil {
		return req, err
	}

	req.Selector = filter.Selector{
		IDs:         filter.IDStrings(attrs["ids"]),
		ExcludedIDs: filter.IDStrings(attrs["all_records_ids_excluded"]),
	}
	if v, ok := attrs["all_records"]; ok && v != nil {
		all, ok := v.(bool)
		if !ok {
			return req, fmt.Errorf("all_records must be a boolean, got %T", v)
		}
		req.Selector.AllRecords = all
	}
	if v, ok := attrs["signed_approval_request"]; ok && v != nil {
		s, ok := v.(string)
		if !ok {
			return req, fmt.Errorf("signed_approval_request must be a string, got %T", v)
		}
		req.SignedApprovalRequest = s
	}
	if v := attrs["requester_id"]; v != nil {
		if ids := filter.IDStrings(v); len(ids) == 1 {
			req.RequesterID = ids[0]
		}
	}
	if req.Timezone == "" {
		if tz, ok := attrs["timezone"].(string); ok {
			req.Timezone = tz
		}
	}
	return req, nil
}

func attributes(params map[string]any) (map[string]any, error) {
	raw, ok := params["data"]
	if !ok || raw == nil {
		return nil, nil
	}
	data, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("data must be an object, got %T", raw)
	}
	rawAttrs, ok := data["attributes"]
	if !ok || rawAttrs == nil {
		return nil, nil
	}
	attrs, ok := rawAttrs.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("data.attributes must be an object, got %T", rawAttrs)
	}
	return attrs, nil
}

// targetsRecords reports whether the selector names at least one record.
func (r Request) targetsRecords() bool {
	return r.Selector.AllRecords || len(r.Selector.Explicit()) > 0
}
