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

package fleet

import (
	"sync"

	"github.com/samber/lo"

	"github.com/stellarops/stellarops/pkg/errors"
)

// Registry maps satellite ids to their actor handles. Insertion is exclusive.
// The interface exists so a cluster-wide registry can replace the in-process
// one with identical semantics; the core requires only single-node behavior.
type Registry interface {
	Insert(id string, a *actor) error
	Remove(id string)
	Lookup(id string) (*actor, bool)
	List() []string
	Count() int
}

type localRegistry struct {
	mu     sync.RWMutex
	actors map[string]*actor
}

// NewLocalRegistry returns the default in-process registry.
func NewLocalRegistry() Registry {
	return &localRegistry{actors: map[string]*actor{}}
}

func (r *localRegistry) Insert(id string, a *actor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.actors[id]; ok {
		return errors.NewAlreadyExists("satellite", id)
	}
	r.actors[id] = a
	return nil
}

func (r *localRegistry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.actors, id)
}

func (r *localRegistry) Lookup(id string) (*actor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.actors[id]
	return a, ok
}

func (r *localRegistry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Keys(r.actors)
}

func (r *localRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.actors)
}
