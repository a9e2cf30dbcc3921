package datastore

import (
	"fmt"
	"net/url"
	"strings"
)

// Key identifies an entity. Keys without a parent are entity group roots.
type Key struct {
	Kind   string
	Name   string
	Parent *Key
}

func NewKey(kind string, name string, parent *Key) *Key {
	return &Key{Kind: kind, Name: name, Parent: parent}
}

func (k *Key) Validate() error {
	if k == nil {
		return fmt.Errorf("%w: key is nil", ErrInvalidKey)
	}
	for current := k; current != nil; current = current.Parent {
		if strings.TrimSpace(current.Kind) == "" {
			return fmt.Errorf("%w: kind is required", ErrInvalidKey)
		}
		if current.Name == "" {
			return fmt.Errorf("%w: name is required for kind %q", ErrInvalidKey, current.Kind)
		}
	}
	return nil
}

// Root returns the entity group root of k.
func (k *Key) Root() *Key {
	if k == nil {
		return nil
	}
	root := k
	for root.Parent != nil {
		root = root.Parent
	}
	return root
}

func (k *Key) Equal(other *Key) bool {
	if k == nil || other == nil {
		return k == nil && other == nil
	}
	if k.Kind != other.Kind || k.Name != other.Name {
		return false
	}
	return k.Parent.Equal(other.Parent)
}

// HasAncestor reports whether ancestor is k itself or one of its parents,
// matching the ancestor query semantics of entity-group stores.
func (k *Key) HasAncestor(ancestor *Key) bool {
	if ancestor == nil {
		return true
	}
	for current := k; current != nil; current = current.Parent {
		if current.Equal(ancestor) {
			return true
		}
	}
	return false
}

// Ancestors returns the path from the root down to k, inclusive.
func (k *Key) Ancestors() []*Key {
	var chain []*Key
	for current := k; current != nil; current = current.Parent {
		chain = append(chain, current)
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain
}

// Encode renders the key as a stable path of escaped kind:name segments.
func (k *Key) Encode() string {
	if k == nil {
		return ""
	}
	segments := make([]string, 0, 2)
	for _, current := range k.Ancestors() {
		segments = append(segments, url.QueryEscape(current.Kind)+":"+url.QueryEscape(current.Name))
	}
	return strings.Join(segments, "/")
}

func (k *Key) String() string {
	return k.Encode()
}

func DecodeKey(encoded string) (*Key, error) {
	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		return nil, fmt.Errorf("%w: encoded key is empty", ErrInvalidKey)
	}
	var parent *Key
	for _, segment := range strings.Split(encoded, "/") {
		kindPart, namePart, ok := strings.Cut(segment, ":")
		if !ok {
			return nil, fmt.Errorf("%w: malformed segment %q", ErrInvalidKey, segment)
		}
		kind, err := url.QueryUnescape(kindPart)
		if err != nil {
			return nil, fmt.Errorf("%w: kind segment %q: %v", ErrInvalidKey, kindPart, err)
		}
		name, err := url.QueryUnescape(namePart)
		if err != nil {
			return nil, fmt.Errorf("%w: name segment %q: %v", ErrInvalidKey, namePart, err)
		}
		parent = NewKey(kind, name, parent)
	}
	if err := parent.Validate(); err != nil {
		return nil, err
	}
	return parent, nil
}
