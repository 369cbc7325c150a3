package claims

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Klingon-tech/codewallet/internal/log"
	"github.com/Klingon-tech/codewallet/internal/remote"
	"github.com/Klingon-tech/codewallet/internal/storage"
	"github.com/Klingon-tech/codewallet/pkg/types"
)

// Defaults for reconciliation.
const (
	// DefaultGrace keeps freshly saved records the viewer does not know yet,
	// since the indexer lags behind the chain.
	DefaultGrace       = 5 * time.Minute
	DefaultConcurrency = 8
)

// Viewer looks up coded transfers.
type Viewer interface {
	ViewTransfer(ctx context.Context, req remote.ViewRequest) (*remote.TransferView, error)
}

// Ledger stores one list of records per (wallet, network), newest first.
type Ledger struct {
	db          storage.DB
	viewer      Viewer
	grace       time.Duration
	concurrency int
	now         func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithGrace sets how long an unavailable record survives after it was saved.
func WithGrace(d time.Duration) Option {
	return func(l *Ledger) {
		if d >= 0 {
			l.grace = d
		}
	}
}

// WithConcurrency bounds parallel viewer calls during reconciliation.
func WithConcurrency(n int) Option {
	return func(l *Ledger) {
		if n > 0 {
			l.concurrency = n
		}
	}
}

// New creates a ledger over db.
func New(db storage.DB, viewer Viewer, opts ...Option) *Ledger {
	l := &Ledger{
		db:          db,
		viewer:      viewer,
		grace:       DefaultGrace,
		concurrency: DefaultConcurrency,
		now:         time.Now,
		locks:       make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func walletPrefix(wallet types.Address) []byte {
	return []byte(wallet.Hex() + "/")
}

func listKey(wallet types.Address, network types.Network) []byte {
	return []byte(wallet.Hex() + "/" + string(network))
}

// lock returns the mutex serializing writes to wallet's lists.
func (l *Ledger) lock(wallet types.Address) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.locks[wallet.Hex()]
	if !ok {
		m = new(sync.Mutex)
		l.locks[wallet.Hex()] = m
	}
	return m
}

func (l *Ledger) load(wallet types.Address, network types.Network) ([]Record, error) {
	data, err := l.db.Get(listKey(wallet, network))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read claims: %w", err)
	}
	var recs []Record
	if err := json.Unmarshal(data, &recs); err != nil {
		return nil, fmt.Errorf("parse claims: %w", err)
	}
	return recs, nil
}

func (l *Ledger) save(wallet types.Address, network types.Network, recs []Record) error {
	key := listKey(wallet, network)
	if len(recs) == 0 {
		return l.db.Delete(key)
	}
	data, err := json.Marshal(recs)
	if err != nil {
		return fmt.Errorf("marshal claims: %w", err)
	}
	if err := l.db.Put(key, data); err != nil {
		return fmt.Errorf("write claims: %w", err)
	}
	return nil
}

// networks returns the networks that hold a list for wallet.
func (l *Ledger) networks(wallet types.Address) ([]types.Network, error) {
	prefix := walletPrefix(wallet)
	var nets []types.Network
	err := l.db.ForEach(prefix, func(key, _ []byte) error {
		nets = append(nets, types.Network(bytes.TrimPrefix(key, prefix)))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list claim networks: %w", err)
	}
	return nets, nil
}

// Add stores r at the front of its list, replacing a record with the same
// code. SavedAt is stamped when zero.
func (l *Ledger) Add(ctx context.Context, wallet types.Address, r Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := r.validate(); err != nil {
		return err
	}
	if r.SavedAt.IsZero() {
		r.SavedAt = l.now().UTC()
	}

	m := l.lock(wallet)
	m.Lock()
	defer m.Unlock()

	recs, err := l.load(wallet, r.Network)
	if err != nil {
		return err
	}
	out := make([]Record, 0, len(recs)+1)
	out = append(out, r)
	for _, existing := range recs {
		if existing.Code != r.Code {
			out = append(out, existing)
		}
	}
	if err := l.save(wallet, r.Network, out); err != nil {
		return err
	}
	log.Ledger.Debug().Str("wallet", wallet.Short()).Str("network", r.Network.String()).Int("count", len(out)).Msg("Claim added")
	return nil
}

// Remove deletes the record with code. Removing an unknown code is a no-op.
func (l *Ledger) Remove(ctx context.Context, wallet types.Address, network types.Network, code string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m := l.lock(wallet)
	m.Lock()
	defer m.Unlock()

	recs, err := l.load(wallet, network)
	if err != nil {
		return err
	}
	out := recs[:0]
	for _, r := range recs {
		if r.Code != code {
			out = append(out, r)
		}
	}
	if len(out) == len(recs) {
		return nil
	}
	return l.save(wallet, network, out)
}

// List returns the stored records of one network, newest first. No remote
// calls are made.
func (l *Ledger) List(ctx context.Context, wallet types.Address, network types.Network) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return l.load(wallet, network)
}

// Count returns how many records are stored for wallet on network, or on
// every network when network is empty. No remote calls are made.
func (l *Ledger) Count(ctx context.Context, wallet types.Address, network types.Network) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	nets := []types.Network{network}
	if network == "" {
		var err error
		if nets, err = l.networks(wallet); err != nil {
			return 0, err
		}
	}
	n := 0
	for _, net := range nets {
		recs, err := l.load(wallet, net)
		if err != nil {
			return 0, err
		}
		n += len(recs)
	}
	return n, nil
}

// outcome is the reconciled state of one stored record.
type outcome struct {
	view  View
	purge bool
}

// ReconcileAll asks the viewer about every record of wallet on every
// network, refreshes records that are ready and purges unavailable ones past
// the grace period. Views for network are returned in stored order.
//
// Viewer failures never fail the call; they surface as StatusUnknown. The
// returned error is reserved for local storage failures.
func (l *Ledger) ReconcileAll(ctx context.Context, wallet types.Address, network types.Network) ([]View, error) {
	defer log.Benchmark("claims reconcile")()

	nets, err := l.networks(wallet)
	if err != nil {
		return nil, err
	}
	snapshot := make(map[types.Network][]Record, len(nets))
	var total int
	for _, net := range nets {
		recs, err := l.load(wallet, net)
		if err != nil {
			return nil, err
		}
		snapshot[net] = recs
		total += len(recs)
	}

	// Remote calls run without the wallet lock so Add and Remove stay fast.
	results := make(map[types.Network][]outcome, len(nets))
	var g errgroup.Group
	g.SetLimit(l.concurrency)
	now := l.now()
	for net, recs := range snapshot {
		outs := make([]outcome, len(recs))
		results[net] = outs
		for i, r := range recs {
			i, r := i, r
			g.Go(func() error {
				outs[i] = l.reconcile(ctx, r, now)
				return nil
			})
		}
	}
	g.Wait()

	if err := l.apply(wallet, results); err != nil {
		return nil, err
	}

	var views []View
	var ready, unavailable, unknown, purged int
	for net, outs := range results {
		for _, o := range outs {
			switch {
			case o.purge:
				purged++
			case o.view.Status == StatusReady:
				ready++
			case o.view.Status == StatusUnavailable:
				unavailable++
			default:
				unknown++
			}
			if net == network && !o.purge {
				views = append(views, o.view)
			}
		}
	}
	log.Ledger.Info().
		Str("wallet", wallet.Short()).
		Int("records", total).
		Int("ready", ready).
		Int("unavailable", unavailable).
		Int("unknown", unknown).
		Int("purged", purged).
		Msg("Claims reconciled")
	return views, nil
}

// reconcile classifies one record against the viewer.
func (l *Ledger) reconcile(ctx context.Context, r Record, now time.Time) outcome {
	v := View{Record: r}
	tv, err := l.viewer.ViewTransfer(ctx, remote.ViewRequest{Code: r.Code, Network: r.Network})
	switch {
	case err != nil && errors.Is(err, remote.ErrNotFound):
		v.Status = StatusUnavailable
	case err != nil:
		v.Status = StatusUnknown
		v.Err = err
	case !r.Sender.IsZero() && !types.Equal(tv.Sender, r.Sender.Hex()):
		// A code reused by another sender is not ours.
		v.Status = StatusUnavailable
	case tv.IsClaimable:
		v.Status = StatusReady
		v.ChainCreatedAt = timePtr(tv.CreatedAt.Time())
		v.ChainExpiration = timePtr(tv.Expiration.Time())
		v.ChainAmountDisplay = string(tv.Amount)
		if r.Decimals != nil {
			if s, err := FormatAmount(string(tv.Amount), *r.Decimals); err == nil {
				v.ChainAmountDisplay = s
			}
		}
		if v.ChainCreatedAt != nil {
			v.CreatedAt = v.ChainCreatedAt
		}
		if v.ChainExpiration != nil {
			v.Expiration = v.ChainExpiration
		}
	default:
		v.Status = StatusUnavailable
	}

	purge := v.Status == StatusUnavailable && now.Sub(r.SavedAt) >= l.grace
	return outcome{view: v, purge: purge}
}

// apply writes reconciliation results back. Lists are re-read under the
// wallet lock so records added meanwhile are kept.
func (l *Ledger) apply(wallet types.Address, results map[types.Network][]outcome) error {
	m := l.lock(wallet)
	m.Lock()
	defer m.Unlock()

	for net, outs := range results {
		byCode := make(map[string]outcome, len(outs))
		for _, o := range outs {
			byCode[o.view.Code] = o
		}

		recs, err := l.load(wallet, net)
		if err != nil {
			return err
		}
		changed := false
		out := make([]Record, 0, len(recs))
		for _, r := range recs {
			o, ok := byCode[r.Code]
			// Skip records replaced since the snapshot.
			if !ok || !r.SavedAt.Equal(o.view.SavedAt) {
				out = append(out, r)
				continue
			}
			if o.purge {
				changed = true
				log.Ledger.Debug().Str("wallet", wallet.Short()).Str("network", net.String()).Msg("Purged unavailable claim")
				continue
			}
			if o.view.Status == StatusReady && !sameTimes(r, o.view.Record) {
				r.CreatedAt = o.view.CreatedAt
				r.Expiration = o.view.Expiration
				changed = true
			}
			out = append(out, r)
		}
		if changed {
			if err := l.save(wallet, net, out); err != nil {
				return err
			}
		}
	}
	return nil
}

func sameTimes(a, b Record) bool {
	return timeEqual(a.CreatedAt, b.CreatedAt) && timeEqual(a.Expiration, b.Expiration)
}

func timeEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

