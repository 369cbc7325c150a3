package storage

// Keyspaces of the wallet database. Each store sees only its own.
const (
	NSSecrets = "s"
	NSVault   = "v"
	NSClaims  = "c"
)

// Namespace is a view of a DB restricted to keys under "<name>/".
// Keys passed in and handed back are relative to the namespace.
type Namespace struct {
	inner  DB
	prefix []byte
}

// NewNamespace returns the view of inner named name. Namespaces nest.
func NewNamespace(inner DB, name string) *Namespace {
	return &Namespace{inner: inner, prefix: []byte(name + "/")}
}

func (n *Namespace) key(k []byte) []byte {
	return append(append(make([]byte, 0, len(n.prefix)+len(k)), n.prefix...), k...)
}

func (n *Namespace) Get(key []byte) ([]byte, error) { return n.inner.Get(n.key(key)) }
func (n *Namespace) Put(key, value []byte) error    { return n.inner.Put(n.key(key), value) }
func (n *Namespace) Delete(key []byte) error        { return n.inner.Delete(n.key(key)) }
func (n *Namespace) Has(key []byte) (bool, error)   { return n.inner.Has(n.key(key)) }

// ForEach visits keys under prefix within the namespace.
func (n *Namespace) ForEach(prefix []byte, fn func(key, value []byte) error) error {
	strip := len(n.prefix)
	return n.inner.ForEach(n.key(prefix), func(key, value []byte) error {
		return fn(key[strip:], value)
	})
}

// Clear deletes every key in the namespace in one batch.
func (n *Namespace) Clear() error {
	b := NewBatch(n.inner)
	if err := n.inner.ForEach(n.prefix, func(key, _ []byte) error {
		return b.Delete(key)
	}); err != nil {
		return err
	}
	return b.Commit()
}

// Close does nothing; the underlying DB is closed by its owner.
func (n *Namespace) Close() error { return nil }

// NewBatch returns a batch scoped to the namespace. It commits atomically
// when the underlying DB supports batches.
func (n *Namespace) NewBatch() Batch {
	return nsBatch{Batch: NewBatch(n.inner), ns: n}
}

type nsBatch struct {
	Batch
	ns *Namespace
}

func (b nsBatch) Put(key, value []byte) error { return b.Batch.Put(b.ns.key(key), value) }
func (b nsBatch) Delete(key []byte) error     { return b.Batch.Delete(b.ns.key(key)) }
