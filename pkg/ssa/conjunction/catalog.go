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

package conjunction

import (
	"sync"
	"time"

	"github.com/samber/lo"

	v1 "github.com/stellarops/stellarops/pkg/apis/v1"
)

// Object is a tracked catalog object, typically debris or a third-party
// spacecraft.
type Object struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	TLE       v1.TLE     `json:"tle"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// Catalog is the in-memory tracked-object catalog the detector screens
// against. Ingest populates it; the TLE watcher reads the same records.
type Catalog struct {
	mu      sync.RWMutex
	objects map[string]Object
}

func NewCatalog() *Catalog {
	return &Catalog{objects: map[string]Object{}}
}

func (c *Catalog) Upsert(obj Object) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.objects[obj.ID] = obj
}

func (c *Catalog) Get(id string) (Object, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	obj, ok := c.objects[id]
	return obj, ok
}

func (c *Catalog) Remove(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.objects, id)
}

func (c *Catalog) List() []Object {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return lo.Values(c.objects)
}

func (c *Catalog) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.objects)
}
