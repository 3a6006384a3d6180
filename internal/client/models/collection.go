package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/dmitrijs2005/gophvault/internal/common"
	"github.com/google/uuid"
)

const CollectionVersion = 1

// Entry is one secret of the collection.
type Entry struct {
	ID string `json:"id"`
	Envelope
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (e Entry) Overview() Overview {
	return Overview{ID: e.ID, Type: e.Type, Title: e.Title}
}

// Collection is the decrypted secret collection. It is not safe for
// concurrent use; the owning service serializes access.
type Collection struct {
	Version int     `json:"version"`
	Entries []Entry `json:"entries"`
}

func NewCollection() *Collection {
	return &Collection{Version: CollectionVersion, Entries: []Entry{}}
}

// ParseCollection decodes a serialized collection. Empty input yields an
// empty collection; a bare JSON array is read as an unversioned entry list.
func ParseCollection(data []byte) (*Collection, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return NewCollection(), nil
	}

	if trimmed[0] == '[' {
		var entries []Entry
		if err := json.Unmarshal(trimmed, &entries); err != nil {
			return nil, fmt.Errorf("decode entry list: %w", err)
		}
		return &Collection{Version: CollectionVersion, Entries: entries}, nil
	}

	var c Collection
	if err := json.Unmarshal(trimmed, &c); err != nil {
		return nil, fmt.Errorf("decode collection: %w", err)
	}
	if c.Entries == nil {
		c.Entries = []Entry{}
	}
	if c.Version == 0 {
		c.Version = CollectionVersion
	}
	return &c, nil
}

func (c *Collection) Marshal() ([]byte, error) {
	return json.Marshal(c)
}

func (c *Collection) Clone() *Collection {
	out := &Collection{Version: c.Version, Entries: make([]Entry, len(c.Entries))}
	copy(out.Entries, c.Entries)
	return out
}

func (c *Collection) Len() int { return len(c.Entries) }

func (c *Collection) Add(env Envelope, now time.Time) Entry {
	e := Entry{ID: uuid.NewString(), Envelope: env, CreatedAt: now.UTC(), UpdatedAt: now.UTC()}
	c.Entries = append(c.Entries, e)
	return e
}

func (c *Collection) Update(id string, env Envelope, now time.Time) (Entry, error) {
	i := c.index(id)
	if i < 0 {
		return Entry{}, common.ErrorNotFound
	}
	c.Entries[i].Envelope = env
	c.Entries[i].UpdatedAt = now.UTC()
	return c.Entries[i], nil
}

func (c *Collection) Delete(id string) error {
	i := c.index(id)
	if i < 0 {
		return common.ErrorNotFound
	}
	c.Entries = slices.Delete(c.Entries, i, i+1)
	return nil
}

func (c *Collection) Get(id string) (Entry, error) {
	i := c.index(id)
	if i < 0 {
		return Entry{}, common.ErrorNotFound
	}
	return c.Entries[i], nil
}

// List returns entry overviews ordered by title, then id.
func (c *Collection) List() []Overview {
	out := make([]Overview, 0, len(c.Entries))
	for _, e := range c.Entries {
		out = append(out, e.Overview())
	}
	slices.SortFunc(out, func(a, b Overview) int {
		if n := strings.Compare(strings.ToLower(a.Title), strings.ToLower(b.Title)); n != 0 {
			return n
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out
}

func (c *Collection) index(id string) int {
	return slices.IndexFunc(c.Entries, func(e Entry) bool { return e.ID == id })
}
