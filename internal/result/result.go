// Package result holds the values a recorder hands back when it stops.
package result

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// Result type discriminants.
const (
	TypeFile       = "file"
	TypeCollection = "collection"
	TypeAnswer     = "answer"
)

// Data is implemented by every result.
type Data interface {
	Identifier() string
	Type() string
	StartDate() time.Time
	EndDate() time.Time
}

// Base carries the fields shared by all results.
type Base struct {
	ID    string    `json:"identifier"`
	Start time.Time `json:"startDate"`
	End   time.Time `json:"endDate"`
}

func (b Base) Identifier() string   { return b.ID }
func (b Base) StartDate() time.Time { return b.Start }
func (b Base) EndDate() time.Time   { return b.End }

// File points at a finalized log file.
type File struct {
	Base
	RelativePath string  `json:"relativePath,omitempty"`
	URL          string  `json:"url"`
	ContentType  string  `json:"contentType,omitempty"`
	StartUptime  float64 `json:"startUptime"`
	JSONSchema   string  `json:"jsonSchema,omitempty"`
	SampleCount  int     `json:"sampleCount,omitempty"`
}

func (File) Type() string { return TypeFile }

func (f File) MarshalJSON() ([]byte, error) {
	type alias File
	return json.Marshal(struct {
		Type string `json:"type"`
		alias
	}{TypeFile, alias(f)})
}

// Answer is a single value, for example a step count attached to a
// distance recording.
type Answer struct {
	Base
	AnswerType string `json:"answerType,omitempty"`
	Value      any    `json:"value"`
}

func (Answer) Type() string { return TypeAnswer }

func (a Answer) MarshalJSON() ([]byte, error) {
	type alias Answer
	return json.Marshal(struct {
		Type string `json:"type"`
		alias
	}{TypeAnswer, alias(a)})
}

// Collection groups the results of one recorder or session.
type Collection struct {
	Base
	Children []Data `json:"children"`
}

func NewCollection(identifier string) *Collection {
	return &Collection{Base: Base{ID: identifier, Start: time.Now()}}
}

func (*Collection) Type() string { return TypeCollection }

// Append adds d, replacing any child with the same identifier.
func (c *Collection) Append(d Data) {
	for i, child := range c.Children {
		if child.Identifier() == d.Identifier() {
			c.Children[i] = d
			return
		}
	}
	c.Children = append(c.Children, d)
}

// Find returns the child with the given identifier.
func (c *Collection) Find(identifier string) (Data, bool) {
	for _, child := range c.Children {
		if child.Identifier() == identifier {
			return child, true
		}
	}
	return nil, false
}

// Collapse returns nil when empty, the only child when there is one, and
// the collection otherwise.
func (c *Collection) Collapse() Data {
	switch len(c.Children) {
	case 0:
		return nil
	case 1:
		return c.Children[0]
	default:
		return c
	}
}

func (c *Collection) MarshalJSON() ([]byte, error) {
	children := c.Children
	if children == nil {
		children = []Data{}
	}
	return json.Marshal(struct {
		Type     string    `json:"type"`
		ID       string    `json:"identifier"`
		Start    time.Time `json:"startDate"`
		End      time.Time `json:"endDate"`
		Children []Data    `json:"children"`
	}{TypeCollection, c.ID, c.Start, c.End, children})
}

func (c *Collection) UnmarshalJSON(data []byte) error {
	var wire struct {
		Base
		Children []json.RawMessage `json:"children"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	c.Base = wire.Base
	c.Children = make([]Data, 0, len(wire.Children))
	for i, raw := range wire.Children {
		child, err := Decode(raw)
		if err != nil {
			return fmt.Errorf("children[%d]: %w", i, err)
		}
		c.Children = append(c.Children, child)
	}
	return nil
}

var (
	registryMu sync.RWMutex
	registry   = map[string]func() Data{
		TypeFile:       func() Data { return &File{} },
		TypeAnswer:     func() Data { return &Answer{} },
		TypeCollection: func() Data { return &Collection{} },
	}
)

// Register adds a decodable result type. The factory must return a pointer.
func Register(typ string, factory func() Data) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[typ] = factory
}

// Decode reads a result using its "type" discriminant. File and Answer
// values are returned by value; other types as the registered pointer.
func Decode(data []byte) (Data, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("failed to read result type: %w", err)
	}
	registryMu.RLock()
	factory, ok := registry[head.Type]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown result type '%s'", head.Type)
	}
	out := factory()
	if err := json.Unmarshal(data, out); err != nil {
		return nil, fmt.Errorf("failed to decode %s result: %w", head.Type, err)
	}
	switch v := out.(type) {
	case *File:
		return *v, nil
	case *Answer:
		return *v, nil
	}
	return out, nil
}
