package platform

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// ValidationError reports an upstream document that did not have the
// expected shape. Problems lists every offending field.
type ValidationError struct {
	Shape    string
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s response: %s", e.Shape, strings.Join(e.Problems, "; "))
}

// checker accumulates problems while walking a decoded JSON document.
// Absent keys and JSON null are treated the same.
type checker struct {
	shape    string
	prefix   string
	problems *[]string
}

func newChecker(shape string) checker {
	return checker{shape: shape, problems: &[]string{}}
}

func (c checker) at(prefix string) checker {
	c.prefix = c.prefix + prefix + "."
	return c
}

func (c checker) failf(key, format string, args ...any) {
	*c.problems = append(*c.problems, c.prefix+key+": "+fmt.Sprintf(format, args...))
}

func (c checker) err() error {
	if len(*c.problems) == 0 {
		return nil
	}
	return &ValidationError{Shape: c.shape, Problems: *c.problems}
}

func (c checker) decodeObject(data []byte) map[string]any {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		c.failf("$", "malformed JSON: %v", err)
		return nil
	}
	obj, ok := v.(map[string]any)
	if !ok {
		c.failf("$", "expected object")
		return nil
	}
	return obj
}

func (c checker) integer(key string, v any) int64 {
	n, ok := v.(json.Number)
	if !ok {
		c.failf(key, "expected integer")
		return 0
	}
	i, err := n.Int64()
	if err != nil {
		c.failf(key, "expected integer, got %s", n)
		return 0
	}
	return i
}

func (c checker) requiredInt(obj map[string]any, key string) int64 {
	v := obj[key]
	if v == nil {
		c.failf(key, "required")
		return 0
	}
	return c.integer(key, v)
}

func (c checker) requiredString(obj map[string]any, key string) string {
	v := obj[key]
	if v == nil {
		c.failf(key, "required")
		return ""
	}
	s, ok := v.(string)
	if !ok {
		c.failf(key, "expected string")
	}
	return s
}

func (c checker) optionalString(obj map[string]any, key string) string {
	if s := c.nullableString(obj, key); s != nil {
		return *s
	}
	return ""
}

func (c checker) nullableString(obj map[string]any, key string) *string {
	v := obj[key]
	if v == nil {
		return nil
	}
	s, ok := v.(string)
	if !ok {
		c.failf(key, "expected string")
		return nil
	}
	return &s
}

func (c checker) optionalBool(obj map[string]any, key string) bool {
	v := obj[key]
	if v == nil {
		return false
	}
	b, ok := v.(bool)
	if !ok {
		c.failf(key, "expected boolean")
	}
	return b
}

func (c checker) optionalObject(obj map[string]any, key string) map[string]any {
	v := obj[key]
	if v == nil {
		return nil
	}
	o, ok := v.(map[string]any)
	if !ok {
		c.failf(key, "expected object")
		return nil
	}
	return o
}

func (c checker) array(obj map[string]any, key string, required bool) []any {
	v := obj[key]
	if v == nil {
		if required {
			c.failf(key, "required")
		}
		return nil
	}
	arr, ok := v.([]any)
	if !ok {
		c.failf(key, "expected array")
		return nil
	}
	return arr
}

func (c checker) objectAt(key string, i int, v any) (map[string]any, checker) {
	name := fmt.Sprintf("%s[%d]", key, i)
	o, ok := v.(map[string]any)
	if !ok {
		c.failf(name, "expected object")
	}
	return o, c.at(name)
}

// ParseProfile validates a user profile document and fills defaults.
// Missing or mistyped id or name rejects the whole document.
func ParseProfile(data []byte) (*Profile, error) {
	c := newChecker("profile")
	obj := c.decodeObject(data)
	if obj == nil {
		return nil, c.err()
	}

	p := Profile{
		ID:                     c.requiredInt(obj, "id"),
		Name:                   c.requiredString(obj, "name"),
		DisplayName:            c.optionalString(obj, "displayName"),
		Description:            c.optionalString(obj, "description"),
		Created:                c.optionalString(obj, "created"),
		IsBanned:               c.optionalBool(obj, "isBanned"),
		ExternalAppDisplayName: c.nullableString(obj, "externalAppDisplayName"),
		HasVerifiedBadge:       c.optionalBool(obj, "hasVerifiedBadge"),
	}

	if arr := c.array(obj, "previousUsernames", false); arr != nil {
		p.PreviousUsernames = make([]string, 0, len(arr))
		for i, v := range arr {
			s, ok := v.(string)
			if !ok {
				c.failf(fmt.Sprintf("previousUsernames[%d]", i), "expected string")
				continue
			}
			p.PreviousUsernames = append(p.PreviousUsernames, s)
		}
	}

	if st := c.optionalObject(obj, "stats"); st != nil {
		sc := c.at("stats")
		p.Stats = &Stats{
			Friends:   sc.requiredInt(st, "friends"),
			Followers: sc.requiredInt(st, "followers"),
			Following: sc.requiredInt(st, "following"),
		}
	}

	if err := c.err(); err != nil {
		return nil, err
	}
	return &p, nil
}

// ParseAvatar extracts the image URL of the first thumbnail in a batch
// thumbnail response.
func ParseAvatar(data []byte) (string, error) {
	c := newChecker("avatar")
	obj := c.decodeObject(data)
	if obj == nil {
		return "", c.err()
	}
	arr := c.array(obj, "data", true)
	if arr == nil {
		return "", c.err()
	}
	if len(arr) == 0 {
		c.failf("data", "no thumbnails returned")
		return "", c.err()
	}
	item, ic := c.objectAt("data", 0, arr[0])
	if item == nil {
		return "", c.err()
	}
	url := ic.requiredString(item, "imageUrl")
	if state := ic.optionalString(item, "state"); state != "" && state != "Completed" {
		ic.failf("state", "thumbnail not available: %s", state)
	}
	if err := c.err(); err != nil {
		return "", err
	}
	if url == "" {
		ic.failf("imageUrl", "empty")
		return "", c.err()
	}
	return url, nil
}

// ParseUsernameHistory returns previous usernames, most recent first as sent.
func ParseUsernameHistory(data []byte) ([]string, error) {
	c := newChecker("username history")
	obj := c.decodeObject(data)
	if obj == nil {
		return nil, c.err()
	}
	arr := c.array(obj, "data", true)
	names := make([]string, 0, len(arr))
	for i, v := range arr {
		item, ic := c.objectAt("data", i, v)
		if item == nil {
			continue
		}
		names = append(names, ic.requiredString(item, "name"))
	}
	if err := c.err(); err != nil {
		return nil, err
	}
	return names, nil
}

// ParseUsernameLookup validates the batch username lookup response.
func ParseUsernameLookup(data []byte) ([]UsernameMatch, error) {
	c := newChecker("username lookup")
	obj := c.decodeObject(data)
	if obj == nil {
		return nil, c.err()
	}
	arr := c.array(obj, "data", true)
	matches := make([]UsernameMatch, 0, len(arr))
	for i, v := range arr {
		item, ic := c.objectAt("data", i, v)
		if item == nil {
			continue
		}
		matches = append(matches, UsernameMatch{
			ID:                ic.requiredInt(item, "id"),
			Name:              ic.requiredString(item, "name"),
			DisplayName:       ic.optionalString(item, "displayName"),
			RequestedUsername: ic.optionalString(item, "requestedUsername"),
			HasVerifiedBadge:  ic.optionalBool(item, "hasVerifiedBadge"),
		})
	}
	if err := c.err(); err != nil {
		return nil, err
	}
	return matches, nil
}

// ParseCount validates a counter response ({"count": n}).
func ParseCount(data []byte) (int64, error) {
	c := newChecker("count")
	obj := c.decodeObject(data)
	if obj == nil {
		return 0, c.err()
	}
	n := c.requiredInt(obj, "count")
	if n < 0 {
		c.failf("count", "negative")
	}
	if err := c.err(); err != nil {
		return 0, err
	}
	return n, nil
}

func ParseStatus(data []byte) (*Status, error) {
	c := newChecker("status")
	obj := c.decodeObject(data)
	if obj == nil {
		return nil, c.err()
	}
	st := Status{Status: c.optionalString(obj, "status")}
	if err := c.err(); err != nil {
		return nil, err
	}
	return &st, nil
}
