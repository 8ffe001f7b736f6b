/*
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package ids mints globally unique, kind-prefixed identifiers so a bare id
// in a log line still says what entity it names.
package ids

import (
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
)

const (
	AlarmPrefix       = "alm"
	ConjunctionPrefix = "cj"
	COAPrefix         = "coa"
	MissionPrefix     = "msn"
)

// Minter mints unique ids for a given kind prefix.
type Minter interface {
	New(prefix string) string
}

type uuidMinter struct{}

// NewMinter returns the production uuid-backed minter.
func NewMinter() Minter {
	return uuidMinter{}
}

func (uuidMinter) New(prefix string) string {
	return fmt.Sprintf("%s-%s", prefix, uuid.NewString())
}

// Sequential is a deterministic minter for tests.
type Sequential struct {
	counter atomic.Uint64
}

func NewSequential() *Sequential {
	return &Sequential{}
}

func (s *Sequential) New(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, s.counter.Add(1))
}
