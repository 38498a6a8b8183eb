package ringcentral

import (
	"context"
	"net/url"
	"strconv"
	"sync"
	"time"
)

// Extension is one entry from the account extension directory, used to enrich
// meeting participants with contact data.
type Extension struct {
	ID              string
	ExtensionNumber string
	Name            string
	Email           string
	Company         string
	Department      string
	JobTitle        string
	BusinessPhone   string
}

type extensionJSON struct {
	ID              int64  `json:"id"`
	ExtensionNumber string `json:"extensionNumber"`
	Name            string `json:"name"`
	Contact         struct {
		Email         string `json:"email"`
		Company       string `json:"company"`
		Department    string `json:"department"`
		JobTitle      string `json:"jobTitle"`
		BusinessPhone string `json:"businessPhone"`
	} `json:"contact"`
}

type extensionsPage struct {
	Records    []extensionJSON `json:"records"`
	Navigation struct {
		NextPage struct {
			URI string `json:"uri"`
		} `json:"nextPage"`
	} `json:"navigation"`
}

// ExtensionCache holds the extension directory pre-fetched once per sync so
// per-participant enrichment never hits the API.
type ExtensionCache struct {
	mu   sync.RWMutex
	byID map[string]Extension
}

// Get returns the cached extension for an id.
func (ec *ExtensionCache) Get(id string) (Extension, bool) {
	ec.mu.RLock()
	defer ec.mu.RUnlock()
	ext, ok := ec.byID[id]
	return ext, ok
}

// Size returns the number of cached extensions.
func (ec *ExtensionCache) Size() int {
	ec.mu.RLock()
	defer ec.mu.RUnlock()
	return len(ec.byID)
}

func toExtension(e extensionJSON) Extension {
	return Extension{
		ID:              strconv.FormatInt(e.ID, 10),
		ExtensionNumber: e.ExtensionNumber,
		Name:            e.Name,
		Email:           e.Contact.Email,
		Company:         e.Contact.Company,
		Department:      e.Contact.Department,
		JobTitle:        e.Contact.JobTitle,
		BusinessPhone:   e.Contact.BusinessPhone,
	}
}

// FetchAllExtensions pre-caches the full extension directory.
func (c *Client) FetchAllExtensions(ctx context.Context) (*ExtensionCache, error) {
	cache := &ExtensionCache{byID: make(map[string]Extension)}

	page := 1
	for {
		q := url.Values{
			"perPage": {"500"},
			"page":    {strconv.Itoa(page)},
			"status":  {"Enabled"},
		}
		var pg extensionsPage
		if err := c.getJSON(ctx, "/restapi/v1.0/account/~/extension", q, &pg); err != nil {
			return cache, err
		}
		cache.mu.Lock()
		for _, e := range pg.Records {
			ext := toExtension(e)
			cache.byID[ext.ID] = ext
		}
		cache.mu.Unlock()

		if pg.Navigation.NextPage.URI == "" {
			break
		}
		page++

		select {
		case <-ctx.Done():
			return cache, ctx.Err()
		case <-time.After(pageSleep):
		}
	}

	c.log.Debug().Int("extensions", cache.Size()).Msg("extension directory cached")
	return cache, nil
}

// GetExtension fetches a single extension directly, bypassing the cache.
func (c *Client) GetExtension(ctx context.Context, id string) (*Extension, error) {
	var e extensionJSON
	if err := c.getJSON(ctx, "/restapi/v1.0/account/~/extension/"+url.PathEscape(id), nil, &e); err != nil {
		return nil, err
	}
	ext := toExtension(e)
	return &ext, nil
}
