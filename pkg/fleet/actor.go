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
	"sync/atomic"

	v1 "github.com/stellarops/stellarops/pkg/apis/v1"
)

const inboxDepth = 64

// actor owns the mutable state of one satellite. Mutations are commands
// applied by the actor goroutine in strict FIFO order; reads come from an
// atomically swapped snapshot and never block on a busy actor.
type actor struct {
	id       string
	mu       sync.Mutex
	closed   bool
	inbox    chan command
	snapshot atomic.Pointer[v1.Satellite]
	done     chan struct{}
}

type command struct {
	fn      func(*v1.Satellite)
	applied chan struct{}
}

func newActor(initial v1.Satellite) *actor {
	a := &actor{
		id:    initial.ID,
		inbox: make(chan command, inboxDepth),
		done:  make(chan struct{}),
	}
	a.snapshot.Store(&initial)
	go a.run(initial)
	return a
}

func (a *actor) run(state v1.Satellite) {
	defer close(a.done)
	for cmd := range a.inbox {
		cmd.fn(&state)
		cp := state
		a.snapshot.Store(&cp)
		if cmd.applied != nil {
			close(cmd.applied)
		}
	}
}

// mutate applies fn on the actor goroutine and waits for the snapshot to
// carry it, so a read after mutate always observes the mutation. Returns
// false if the actor has already shut down; mu orders the send against the
// inbox close so a mutation racing shutdown never hits a closed channel.
func (a *actor) mutate(fn func(*v1.Satellite)) bool {
	applied := make(chan struct{})
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return false
	}
	a.inbox <- command{fn: fn, applied: applied}
	a.mu.Unlock()
	<-applied
	return true
}

// state returns the latest snapshot.
func (a *actor) state() v1.Satellite {
	return *a.snapshot.Load()
}

// shutdown stops the actor goroutine. Pending inbox commands are applied
// first.
func (a *actor) shutdown() {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.inbox)
	}
	a.mu.Unlock()
	<-a.done
}
