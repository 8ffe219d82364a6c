package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// Consolidated is the period sentinel meaning "all time".
const Consolidated Period = "consolidated"

// Period selects the data window for a card: Consolidated or an opaque
// period key such as "2024-05".
type Period string

// IsConsolidated reports whether p is the all-time sentinel.
func (p Period) IsConsolidated() bool {
	return p == Consolidated
}

// CardQuery addresses a card's value, preview and export. Two queries are
// equivalent iff both fields match, so CardQuery is usable as a map key.
type CardQuery struct {
	Card   string
	Period Period
}

func (q CardQuery) String() string {
	return q.Card + "@" + string(q.Period)
}

// Values encodes the period as the backend expects it.
func (q CardQuery) Values() url.Values {
	values := url.Values{}
	if q.Period.IsConsolidated() || q.Period == "" {
		values.Set("consolidated", "true")
		return values
	}
	values.Set("consolidated", "false")
	values.Set("date", string(q.Period))
	return values
}

func (q CardQuery) validate() error {
	if strings.TrimSpace(q.Card) == "" {
		return fmt.Errorf("card name required")
	}
	return nil
}

// CardMetric is the summary value behind a card.
type CardMetric struct {
	Value  float64  `json:"value"`
	Change *float64 `json:"change,omitempty"`
}

// Download is a binary export payload.
type Download struct {
	Data        []byte
	ContentType string
	Disposition string
}

// FetchCard retrieves the value for q.
func (c *Client) FetchCard(ctx context.Context, q CardQuery) (CardMetric, error) {
	if err := q.validate(); err != nil {
		return CardMetric{}, err
	}
	var metric CardMetric
	err := c.DoJSON(ctx, Request{
		Method: http.MethodGet,
		Path:   "/dashboard/card/" + url.PathEscape(q.Card),
		Query:  q.Values(),
	}, &metric)
	if err != nil {
		return CardMetric{}, err
	}
	return metric, nil
}

// FetchPreview retrieves the raw preview payload for q. Normalizing the two
// possible wire shapes is left to the preview package.
func (c *Client) FetchPreview(ctx context.Context, q CardQuery) (json.RawMessage, error) {
	if err := q.validate(); err != nil {
		return nil, err
	}
	values := q.Values()
	values.Set("preview", "true")
	resp, err := c.Do(ctx, Request{
		Method: http.MethodGet,
		Path:   "/dashboard/export/" + url.PathEscape(q.Card),
		Query:  values,
	})
	if err != nil {
		return nil, err
	}
	body := bytes.TrimSpace(resp.Body)
	if !json.Valid(body) {
		return nil, fmt.Errorf("decode response: preview payload is not JSON")
	}
	return json.RawMessage(body), nil
}

// FetchExport retrieves the spreadsheet extract for q.
func (c *Client) FetchExport(ctx context.Context, q CardQuery) (Download, error) {
	if err := q.validate(); err != nil {
		return Download{}, err
	}
	resp, err := c.Do(ctx, Request{
		Method: http.MethodGet,
		Path:   "/dashboard/export/" + url.PathEscape(q.Card),
		Query:  q.Values(),
		Accept: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet, application/octet-stream, application/json",
	})
	if err != nil {
		return Download{}, err
	}
	return Download{
		Data:        resp.Body,
		ContentType: resp.Header.Get("Content-Type"),
		Disposition: resp.Header.Get("Content-Disposition"),
	}, nil
}

// FetchAvailablePeriods lists the periods with data, most recent first.
func (c *Client) FetchAvailablePeriods(ctx context.Context) ([]Period, error) {
	resp, err := c.Do(ctx, Request{Method: http.MethodGet, Path: "/dashboard/available-dates"})
	if err != nil {
		return nil, err
	}
	return decodePeriods(resp.Body)
}

func decodePeriods(body []byte) ([]Period, error) {
	body = bytes.TrimSpace(body)
	var raw []string
	if len(body) > 0 && body[0] == '[' {
		if err := json.Unmarshal(body, &raw); err != nil {
			return nil, fmt.Errorf("decode response: %w", err)
		}
	} else {
		var wrapped struct {
			Dates   []string `json:"dates"`
			Periods []string `json:"periods"`
		}
		if err := json.Unmarshal(body, &wrapped); err != nil {
			return nil, fmt.Errorf("decode response: %w", err)
		}
		raw = wrapped.Dates
		if len(raw) == 0 {
			raw = wrapped.Periods
		}
	}
	periods := make([]Period, 0, len(raw))
	for _, p := range raw {
		if p = strings.TrimSpace(p); p != "" {
			periods = append(periods, Period(p))
		}
	}
	return periods, nil
}
