package audit

import "time"

// TimelineFilters narrows an audit timeline query. Zero values are ignored.
type TimelineFilters struct {
	From     time.Time
	To       time.Time
	Actor    string
	Entity   string
	Action   string
	Page     int
	PageSize int
}

// TimelineRow is one audit_logs entry.
type TimelineRow struct {
	At       time.Time      `json:"at"`
	Actor    string         `json:"actor_id,omitempty"`
	Action   string         `json:"action"`
	Entity   string         `json:"entity"`
	EntityID string         `json:"entity_id"`
	Meta     map[string]any `json:"meta,omitempty"`
}

// PagingInfo is window metadata for timeline pages.
type PagingInfo struct {
	Page     int  `json:"page"`
	PageSize int  `json:"page_size"`
	HasNext  bool `json:"has_next"`
	PrevPage int  `json:"prev_page,omitempty"`
	NextPage int  `json:"next_page,omitempty"`
}

// Result wraps a timeline page.
type Result struct {
	Rows   []TimelineRow `json:"rows"`
	Paging PagingInfo    `json:"paging"`
}

// Query is what a repository receives: the filters without paging.
type Query struct {
	From   time.Time
	To     time.Time
	Actor  string
	Entity string
	Action string
}

func (f TimelineFilters) query() Query {
	return Query{From: f.From, To: f.To, Actor: f.Actor, Entity: f.Entity, Action: f.Action}
}

// Match reports whether row satisfies q. To is exclusive.
func (q Query) Match(row TimelineRow) bool {
	if !q.From.IsZero() && row.At.Before(q.From) {
		return false
	}
	if !q.To.IsZero() && !row.At.Before(q.To) {
		return false
	}
	if q.Actor != "" && row.Actor != q.Actor {
		return false
	}
	if q.Entity != "" && row.Entity != q.Entity {
		return false
	}
	if q.Action != "" && row.Action != q.Action {
		return false
	}
	return true
}
