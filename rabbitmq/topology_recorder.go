package rabbitmq

import (
	"sync"

	"github.com/rs/zerolog"
)

// RecordedExchange mirrors spec.md's RecordedExchange. Key = Name.
type RecordedExchange struct {
	Name           string
	Kind           string
	Durable        bool
	AutoDelete     bool
	Arguments      Table
	IsServerNamed  bool
}

// RecordedQueue mirrors spec.md's RecordedQueue. Key = current Name (the
// field is reassigned in place on a server-named-queue rename).
type RecordedQueue struct {
	Name          string
	Durable       bool
	Exclusive     bool
	AutoDelete    bool
	Arguments     Table
	IsServerNamed bool
}

// bindingTarget distinguishes exchange-to-queue from exchange-to-exchange
// bindings, per spec.md §3 ("Exchange-to-queue and exchange-to-exchange are
// distinguished variants").
type bindingTarget int

const (
	targetQueue bindingTarget = iota
	targetExchange
)

// RecordedBinding mirrors spec.md's RecordedBinding. Identity is the full
// four-tuple (source, destination, kind, routing key); Arguments are
// carried but not part of identity.
type RecordedBinding struct {
	Source      string
	Destination string
	DestKind    bindingTarget
	RoutingKey  string
	Arguments   Table
}

// DeliveryCallback is the per-consumer delivery dispatch hook the Recorder
// replays onto a fresh Session after recovery. It has the same shape as
// ConsumerCallback.HandleDelivery so existing consumers need no adaptation.
type DeliveryCallback func(consumerTag string, d Delivery) error

// RecordedConsumer mirrors spec.md's RecordedConsumer. Key = current Tag.
// ModelRef is a weak back-reference (spec.md §9's cyclic-reference note):
// it is a function the Recorder calls at replay time to re-issue the
// consume on the Model that is current then, not a hard pointer kept alive
// by the Recorder.
type RecordedConsumer struct {
	Tag           string
	Queue         string
	AutoAck       bool
	Exclusive     bool
	Arguments     Table
	ModelRef      func() *Channel
	Callback      ConsumerCallback
	IsServerNamed bool
}

// RenameEvent describes a server-assigned-identity change discovered during
// recovery replay (spec.md §4.5's QueueNameChangeAfterRecovery /
// ConsumerTagChangeAfterRecovery).
type RenameEvent struct {
	Kind   string // "queue" or "consumer"
	Before string
	After  string
}

// ReplayError reports a single entity's replay failure without aborting the
// rest of the replay (spec.md §4.4: "does not abort the rest").
type ReplayError struct {
	Kind string
	Name string
	Err  error
}

func (e *ReplayError) Error() string {
	return e.Kind + " " + e.Name + ": " + e.Err.Error()
}

// TopologyRecorder is the append-until-pruned set of recorded entities,
// guarded by one mutex covering all four collections (spec.md §5: "one
// mutex covering all four collections because prune cascades cross them").
type TopologyRecorder struct {
	mu sync.Mutex

	exchanges map[string]*RecordedExchange
	queues    map[string]*RecordedQueue
	// bindings has no natural single key; identity is the 4-tuple, so it's
	// kept as an ordered slice plus a set for fast membership/dedup.
	bindings    []*RecordedBinding
	bindingSeen map[string]bool
	consumers   map[string]*RecordedConsumer
	// consumerOrder/queueOrder/exchangeOrder preserve stable insertion
	// order for replay (spec.md §4.4: "insertion order (stable) is
	// preserved").
	exchangeOrder []string
	queueOrder    []string
	consumerOrder []string

	enabled   bool // topology_recovery config flag
	replaying bool // true while Replay is issuing its own record/bind calls
	log       zerolog.Logger
}

// Replaying reports whether the Recorder is currently inside Replay. Model
// methods check this before recording, so replay-issued redeclarations
// don't get re-recorded as if they were fresh application calls.
func (r *TopologyRecorder) Replaying() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.replaying
}

func (r *TopologyRecorder) setReplaying(v bool) {
	r.mu.Lock()
	r.replaying = v
	r.mu.Unlock()
}

// NewTopologyRecorder creates a Recorder. enabled corresponds to
// spec.md §6's topology_recovery config flag: when false, record/delete
// calls are no-ops and Replay does nothing (spec.md §4.5 "Topology recovery
// disabled").
func NewTopologyRecorder(enabled bool, log zerolog.Logger) *TopologyRecorder {
	return &TopologyRecorder{
		exchanges:   make(map[string]*RecordedExchange),
		queues:      make(map[string]*RecordedQueue),
		bindingSeen: make(map[string]bool),
		consumers:   make(map[string]*RecordedConsumer),
		enabled:     enabled,
		log:         log,
	}
}

func bindingKey(b *RecordedBinding) string {
	kind := "q"
	if b.DestKind == targetExchange {
		kind = "x"
	}
	return b.Source + "\x00" + kind + "\x00" + b.Destination + "\x00" + b.RoutingKey
}

// RecordExchange is idempotent: redeclaring the same name replaces its
// entry in place.
func (r *TopologyRecorder) RecordExchange(e RecordedExchange) {
	if !r.enabled {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.exchanges[e.Name]; !exists {
		r.exchangeOrder = append(r.exchangeOrder, e.Name)
	}
	r.exchanges[e.Name] = &e
}

// DeleteExchange removes name and cascades to every binding sourced at or
// destined to it (spec.md §4.4).
func (r *TopologyRecorder) DeleteExchange(name string) {
	if !r.enabled {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleteExchangeLocked(name)
}

func (r *TopologyRecorder) deleteExchangeLocked(name string) {
	if _, exists := r.exchanges[name]; !exists {
		return
	}
	delete(r.exchanges, name)
	r.exchangeOrder = removeString(r.exchangeOrder, name)

	kept := r.bindings[:0:0]
	for _, b := range r.bindings {
		if b.Source == name || (b.DestKind == targetExchange && b.Destination == name) {
			delete(r.bindingSeen, bindingKey(b))
			continue
		}
		kept = append(kept, b)
	}
	r.bindings = kept
	r.pruneAutoDeleteLocked()
}

// RecordQueue is idempotent like RecordExchange.
func (r *TopologyRecorder) RecordQueue(q RecordedQueue) {
	if !r.enabled {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.queues[q.Name]; !exists {
		r.queueOrder = append(r.queueOrder, q.Name)
	}
	r.queues[q.Name] = &q
}

// DeleteQueue removes name and cascades to its bindings and consumers.
func (r *TopologyRecorder) DeleteQueue(name string) {
	if !r.enabled {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleteQueueLocked(name)
}

func (r *TopologyRecorder) deleteQueueLocked(name string) {
	if _, exists := r.queues[name]; !exists {
		return
	}
	delete(r.queues, name)
	r.queueOrder = removeString(r.queueOrder, name)

	kept := r.bindings[:0:0]
	for _, b := range r.bindings {
		if b.DestKind == targetQueue && b.Destination == name {
			delete(r.bindingSeen, bindingKey(b))
			continue
		}
		kept = append(kept, b)
	}
	r.bindings = kept

	for tag, c := range r.consumers {
		if c.Queue == name {
			delete(r.consumers, tag)
			r.consumerOrder = removeString(r.consumerOrder, tag)
		}
	}
	r.pruneAutoDeleteLocked()
}

// RecordBinding records a binding; identity is the full 4-tuple.
func (r *TopologyRecorder) RecordBinding(b RecordedBinding) {
	if !r.enabled {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	key := bindingKey(&b)
	if r.bindingSeen[key] {
		return
	}
	r.bindingSeen[key] = true
	r.bindings = append(r.bindings, &b)
}

// DeleteBinding removes a binding by its identity 4-tuple and prunes any
// auto-delete exchange left with no referring binding.
func (r *TopologyRecorder) DeleteBinding(b RecordedBinding) {
	if !r.enabled {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	key := bindingKey(&b)
	if !r.bindingSeen[key] {
		return
	}
	delete(r.bindingSeen, key)
	kept := r.bindings[:0:0]
	for _, existing := range r.bindings {
		if bindingKey(existing) == key {
			continue
		}
		kept = append(kept, existing)
	}
	r.bindings = kept
	r.pruneAutoDeleteLocked()
}

// RecordConsumer records a consumer; identity is Tag.
func (r *TopologyRecorder) RecordConsumer(c RecordedConsumer) {
	if !r.enabled {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.consumers[c.Tag]; !exists {
		r.consumerOrder = append(r.consumerOrder, c.Tag)
	}
	r.consumers[c.Tag] = &c
}

// DeleteConsumer removes a consumer by tag and prunes its queue if it was
// the last consumer of an auto-delete queue with no bindings either.
func (r *TopologyRecorder) DeleteConsumer(tag string) {
	if !r.enabled {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.consumers[tag]; !exists {
		return
	}
	delete(r.consumers, tag)
	r.consumerOrder = removeString(r.consumerOrder, tag)
	r.pruneAutoDeleteLocked()
}

// pruneAutoDeleteLocked implements spec.md §4.4's recursive pruning rule.
// Runs to a fixed point: pruning a queue can orphan an exchange-to-exchange
// chain, and vice versa, so it iterates until nothing more is removed.
func (r *TopologyRecorder) pruneAutoDeleteLocked() {
	for {
		pruned := false

		for name, q := range r.queues {
			if !q.AutoDelete {
				continue
			}
			if r.queueReferenced(name) {
				continue
			}
			delete(r.queues, name)
			r.queueOrder = removeString(r.queueOrder, name)
			kept := r.bindings[:0:0]
			for _, b := range r.bindings {
				if b.DestKind == targetQueue && b.Destination == name {
					delete(r.bindingSeen, bindingKey(b))
					continue
				}
				kept = append(kept, b)
			}
			r.bindings = kept
			pruned = true
		}

		for name, x := range r.exchanges {
			if !x.AutoDelete {
				continue
			}
			if r.exchangeReferenced(name) {
				continue
			}
			delete(r.exchanges, name)
			r.exchangeOrder = removeString(r.exchangeOrder, name)
			kept := r.bindings[:0:0]
			for _, b := range r.bindings {
				if b.Source == name || (b.DestKind == targetExchange && b.Destination == name) {
					delete(r.bindingSeen, bindingKey(b))
					continue
				}
				kept = append(kept, b)
			}
			r.bindings = kept
			pruned = true
		}

		if !pruned {
			return
		}
	}
}

func (r *TopologyRecorder) queueReferenced(name string) bool {
	for _, c := range r.consumers {
		if c.Queue == name {
			return true
		}
	}
	for _, b := range r.bindings {
		if b.DestKind == targetQueue && b.Destination == name {
			return true
		}
	}
	return false
}

func (r *TopologyRecorder) exchangeReferenced(name string) bool {
	for _, b := range r.bindings {
		if b.Source == name {
			return true
		}
		if b.DestKind == targetExchange && b.Destination == name {
			return true
		}
	}
	return false
}

// RenameQueue rewrites every recorded binding/consumer that referenced
// old to new, and the queue's own key, per spec.md §4.4's rename_queue and
// the server-named-queue rebind semantics of §4.5. Must run before the
// corresponding bind/consume replay commands are issued.
func (r *TopologyRecorder) RenameQueue(old, new string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if q, exists := r.queues[old]; exists {
		delete(r.queues, old)
		q.Name = new
		r.queues[new] = q
		for i, n := range r.queueOrder {
			if n == old {
				r.queueOrder[i] = new
			}
		}
	}
	for _, b := range r.bindings {
		if b.DestKind == targetQueue && b.Destination == old {
			b.Destination = new
		}
	}
	for _, c := range r.consumers {
		if c.Queue == old {
			c.Queue = new
		}
	}
}

// RenameConsumer rewrites the consumer's own key after a broker-assigned
// tag change.
func (r *TopologyRecorder) RenameConsumer(old, new string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, exists := r.consumers[old]
	if !exists {
		return
	}
	delete(r.consumers, old)
	c.Tag = new
	r.consumers[new] = c
	for i, t := range r.consumerOrder {
		if t == old {
			r.consumerOrder[i] = new
		}
	}
}

// Counts for test assertions (spec.md §8 P1/R1).
func (r *TopologyRecorder) ExchangeCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.exchanges)
}

func (r *TopologyRecorder) QueueCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.queues)
}

func (r *TopologyRecorder) BindingCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.bindings)
}

func (r *TopologyRecorder) ConsumerCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.consumers)
}

func (r *TopologyRecorder) ConsumerCountForQueue(queue string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.consumers {
		if c.Queue == queue {
			n++
		}
	}
	return n
}

// snapshot copies out the four collections in fixed replay order
// (exchanges -> queues -> bindings -> consumers), insertion order preserved
// within each kind, per spec.md §4.4.
func (r *TopologyRecorder) snapshot() (exs []RecordedExchange, qs []RecordedQueue, bs []RecordedBinding, cs []RecordedConsumer) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, name := range r.exchangeOrder {
		if e, ok := r.exchanges[name]; ok {
			exs = append(exs, *e)
		}
	}
	for _, name := range r.queueOrder {
		if q, ok := r.queues[name]; ok {
			qs = append(qs, *q)
		}
	}
	for _, b := range r.bindings {
		bs = append(bs, *b)
	}
	for _, tag := range r.consumerOrder {
		if c, ok := r.consumers[tag]; ok {
			cs = append(cs, *c)
		}
	}
	return
}

// Replay reissues every recorded exchange, queue, binding, and consumer
// declaration on ch, in that fixed order, per spec.md §4.4. It sets the
// replaying flag for the duration so the Model's own record* calls (made
// from inside ExchangeDeclare/QueueDeclare/QueueBind/ExchangeBind and
// registerConsumer as Replay calls them) don't double-record. A failure on one entity is
// collected into the returned slice and does not abort the rest of the
// replay (spec.md §4.4).
func (r *TopologyRecorder) Replay(ch *Channel) ([]RenameEvent, []*ReplayError) {
	if !r.enabled {
		return nil, nil
	}

	r.setReplaying(true)
	defer r.setReplaying(false)

	var renames []RenameEvent
	var errs []*ReplayError

	exs, qs, bs, cs := r.snapshot()

	for _, e := range exs {
		if err := ch.ExchangeDeclare(e.Name, e.Kind, ExchangeDeclareOptions{
			Durable: e.Durable, AutoDelete: e.AutoDelete, Args: e.Arguments,
		}); err != nil {
			errs = append(errs, &ReplayError{Kind: "exchange", Name: e.Name, Err: err})
		}
	}

	for _, q := range qs {
		declareName := q.Name
		if q.IsServerNamed {
			declareName = ""
		}
		recovered, err := ch.QueueDeclare(declareName, QueueDeclareOptions{
			Durable: q.Durable, Exclusive: q.Exclusive, AutoDelete: q.AutoDelete, Args: q.Arguments,
		})
		if err != nil {
			errs = append(errs, &ReplayError{Kind: "queue", Name: q.Name, Err: err})
			continue
		}
		if q.IsServerNamed && recovered.Name != q.Name {
			renames = append(renames, RenameEvent{Kind: "queue", Before: q.Name, After: recovered.Name})
			r.RenameQueue(q.Name, recovered.Name)
		}
	}

	// Binding destinations may have just been rewritten by a queue rename
	// above; re-snapshot so replay uses post-rename names.
	_, _, bs, cs = r.snapshot()

	for _, b := range bs {
		var err error
		if b.DestKind == targetQueue {
			err = ch.QueueBind(b.Destination, b.Source, b.RoutingKey, b.Arguments)
		} else {
			err = ch.ExchangeBind(b.Destination, b.Source, b.RoutingKey, b.Arguments)
		}
		if err != nil {
			errs = append(errs, &ReplayError{Kind: "binding", Name: bindingKey(&b), Err: err})
		}
	}

	for _, c := range cs {
		if c.Callback == nil {
			continue
		}
		wireTag := c.Tag
		if c.IsServerNamed {
			wireTag = ""
		}
		finalTag, err := ch.registerConsumer(c.Queue, wireTag, c.IsServerNamed, ConsumeOptions{
			AutoAck: c.AutoAck, Exclusive: c.Exclusive, Args: c.Arguments,
		}, c.Callback)
		if err != nil {
			errs = append(errs, &ReplayError{Kind: "consumer", Name: c.Tag, Err: err})
			continue
		}
		if c.IsServerNamed && finalTag != c.Tag {
			renames = append(renames, RenameEvent{Kind: "consumer", Before: c.Tag, After: finalTag})
			r.RenameConsumer(c.Tag, finalTag)
		}
	}

	return renames, errs
}

func removeString(s []string, v string) []string {
	out := s[:0:0]
	for _, x := range s {
		if x != v {
			out = append(out, x)
		}
	}
	return out
}
