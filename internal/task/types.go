package task

import (
	"fmt"
	"strings"

	"github.com/yuriy-kovalchuk/yk-ddns/internal/dns"
)

// SourceKind names where the desired address of a record comes from.
type SourceKind string

const (
	SourceLocal  SourceKind = "local"
	SourceRouter SourceKind = "router"
)

// ParseSourceKind converts s (case-insensitive) into a SourceKind.
func ParseSourceKind(s string) (SourceKind, error) {
	k := SourceKind(strings.ToLower(strings.TrimSpace(s)))
	switch k {
	case SourceLocal, SourceRouter:
		return k, nil
	}
	return "", fmt.Errorf("unknown source %q (want %q or %q)", s, SourceLocal, SourceRouter)
}

// RecordConfig describes one tracked record.
type RecordConfig struct {
	Name   string
	Type   dns.RecordType
	Source SourceKind
}

func (c RecordConfig) String() string {
	return fmt.Sprintf("%s/%s<-%s", c.Name, c.Type, c.Source)
}

// Board pairs the desired state of a record with the last state the
// provider acknowledged. A nil Remote means the provider holds no record.
type Board struct {
	Config RecordConfig
	Local  dns.Record
	Remote *dns.Record
}

func (b *Board) clone() Board {
	cp := *b
	if b.Remote != nil {
		r := *b.Remote
		cp.Remote = &r
	}
	return cp
}
