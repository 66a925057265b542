package core

import (
	"crypto/rand"
	"fmt"
	"regexp"
	"time"
)

// Task ids sort chronologically: a minute-resolution timestamp prefix
// followed by a random suffix to disambiguate ids minted in the same
// minute, e.g. 202602081506-R18Y1Q.

// idSuffixAlphabet excludes nothing; uppercase base36 keeps ids short and
// shell-safe.
const idSuffixAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// idSuffixLength is the number of random characters after the timestamp.
const idSuffixLength = 6

// taskIDPattern validates the canonical id shape.
var taskIDPattern = regexp.MustCompile(`^\d{12}-[0-9A-Z]{6}$`)

// TaskIDGenerator mints unique, sortable task ids.
type TaskIDGenerator interface {
	GenerateTaskID() (string, error)
}

type clockIDGenerator struct {
	now func() time.Time
}

// NewTaskIDGenerator creates a TaskIDGenerator using the system clock.
func NewTaskIDGenerator() TaskIDGenerator {
	return &clockIDGenerator{now: time.Now}
}

// GenerateTaskID returns a fresh id: UTC timestamp prefix (YYYYMMDDHHMM)
// plus a random 6-character suffix.
func (g *clockIDGenerator) GenerateTaskID() (string, error) {
	buf := make([]byte, idSuffixLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating task id suffix: %w", err)
	}
	suffix := make([]byte, idSuffixLength)
	for i, b := range buf {
		suffix[i] = idSuffixAlphabet[int(b)%len(idSuffixAlphabet)]
	}
	return g.now().UTC().Format("200601021504") + "-" + string(suffix), nil
}

// ValidTaskID reports whether id has the canonical timestamp-suffix shape.
func ValidTaskID(id string) bool {
	return taskIDPattern.MatchString(id)
}
