// Package catalog loads the saga catalog: which transaction types exist,
// which preparation kinds participants stage for them, and which kinds
// exclude each other.
//
// Catalogs are CUE documents unified with an embedded schema. A default
// catalog for the bank domain ships with the binary.
package catalog

import (
	"cmp"
	_ "embed"
	"fmt"
	"os"
	"slices"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/eventual2pc/internal/saga"
)

//go:embed schema.cue
var schemaSrc []byte

//go:embed default.cue
var defaultSrc []byte

// TransactionKind describes one transaction type.
type TransactionKind struct {
	Name         string                 `json:"name"`
	Tag          saga.TransactionType   `json:"tag"`
	Description  string                 `json:"description,omitempty"`
	Preparations []saga.PreparationKind `json:"preparations"`
}

// PreparationKind describes one preparation kind.
type PreparationKind struct {
	Name        saga.PreparationKind   `json:"name"`
	Description string                 `json:"description,omitempty"`
	Excludes    []saga.PreparationKind `json:"excludes"`
}

// Catalog is a validated catalog. It is immutable after loading.
type Catalog struct {
	transactions []TransactionKind
	preparations []PreparationKind
	excludes     map[saga.PreparationKind]map[saga.PreparationKind]struct{}
}

// LoadError reports a problem in a catalog source, with its position when
// CUE provides one.
type LoadError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Default returns the embedded catalog.
func Default() (*Catalog, error) {
	return Load("default.cue", defaultSrc)
}

// LoadFile reads and loads a catalog file.
func LoadFile(path string) (*Catalog, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Load(path, src)
}

// Load compiles src, unifies it with the schema and validates it.
func Load(filename string, src []byte) (*Catalog, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileBytes(schemaSrc, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	doc := ctx.CompileBytes(src, cue.Filename(filename))
	if err := doc.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	v := schema.Unify(doc)
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}

	c := &Catalog{excludes: make(map[saga.PreparationKind]map[saga.PreparationKind]struct{})}
	if err := c.parsePreparations(v.LookupPath(cue.ParsePath("preparations"))); err != nil {
		return nil, err
	}
	if err := c.parseTransactions(v.LookupPath(cue.ParsePath("transactions"))); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Catalog) parsePreparations(v cue.Value) error {
	if !v.Exists() {
		return &LoadError{Field: "preparations", Message: "at least one preparation kind is required"}
	}
	iter, err := v.Fields()
	if err != nil {
		return formatCUEError(err)
	}
	for iter.Next() {
		pk := PreparationKind{Name: saga.PreparationKind(iter.Label())}
		pv := iter.Value()
		if pk.Description, err = optionalString(pv, "description"); err != nil {
			return err
		}
		if pk.Excludes, err = kindList(pv.LookupPath(cue.ParsePath("excludes"))); err != nil {
			return err
		}
		c.preparations = append(c.preparations, pk)
	}
	if len(c.preparations) == 0 {
		return &LoadError{Field: "preparations", Message: "at least one preparation kind is required", Pos: v.Pos()}
	}
	slices.SortFunc(c.preparations, func(a, b PreparationKind) int {
		return cmp.Compare(a.Name, b.Name)
	})

	for _, pk := range c.preparations {
		for _, other := range pk.Excludes {
			if !c.hasPreparation(other) {
				return &LoadError{
					Field:   fmt.Sprintf("preparations.%s.excludes", pk.Name),
					Message: fmt.Sprintf("unknown preparation kind %q", other),
					Pos:     v.Pos(),
				}
			}
			c.exclude(pk.Name, other)
			c.exclude(other, pk.Name)
		}
	}
	// Report the symmetric closure so listings match behavior.
	for i := range c.preparations {
		pk := &c.preparations[i]
		pk.Excludes = pk.Excludes[:0]
		for other := range c.excludes[pk.Name] {
			pk.Excludes = append(pk.Excludes, other)
		}
		slices.Sort(pk.Excludes)
	}
	return nil
}

func (c *Catalog) parseTransactions(v cue.Value) error {
	if !v.Exists() {
		return &LoadError{Field: "transactions", Message: "at least one transaction kind is required"}
	}
	iter, err := v.Fields()
	if err != nil {
		return formatCUEError(err)
	}
	seen := make(map[saga.TransactionType]string)
	for iter.Next() {
		tk := TransactionKind{Name: iter.Label()}
		tv := iter.Value()

		tag, err := tv.LookupPath(cue.ParsePath("tag")).Int64()
		if err != nil {
			return formatCUEError(err)
		}
		tk.Tag = saga.TransactionType(tag)
		if prev, ok := seen[tk.Tag]; ok {
			return &LoadError{
				Field:   "transactions." + tk.Name + ".tag",
				Message: fmt.Sprintf("tag %d already used by %s", tag, prev),
				Pos:     tv.Pos(),
			}
		}
		seen[tk.Tag] = tk.Name

		if tk.Description, err = optionalString(tv, "description"); err != nil {
			return err
		}
		if tk.Preparations, err = kindList(tv.LookupPath(cue.ParsePath("preparations"))); err != nil {
			return err
		}
		if len(tk.Preparations) == 0 {
			return &LoadError{Field: "transactions." + tk.Name + ".preparations", Message: "must name at least one kind", Pos: tv.Pos()}
		}
		for _, kind := range tk.Preparations {
			if !c.hasPreparation(kind) {
				return &LoadError{
					Field:   "transactions." + tk.Name + ".preparations",
					Message: fmt.Sprintf("unknown preparation kind %q", kind),
					Pos:     tv.Pos(),
				}
			}
		}
		c.transactions = append(c.transactions, tk)
	}
	if len(c.transactions) == 0 {
		return &LoadError{Field: "transactions", Message: "at least one transaction kind is required", Pos: v.Pos()}
	}
	slices.SortFunc(c.transactions, func(a, b TransactionKind) int { return int(a.Tag) - int(b.Tag) })
	return nil
}

// Transactions returns the transaction kinds ordered by tag.
func (c *Catalog) Transactions() []TransactionKind {
	return slices.Clone(c.transactions)
}

// Transaction looks a transaction kind up by name.
func (c *Catalog) Transaction(name string) (TransactionKind, bool) {
	for _, tk := range c.transactions {
		if tk.Name == name {
			return tk, true
		}
	}
	return TransactionKind{}, false
}

// TransactionByTag looks a transaction kind up by its persisted tag.
func (c *Catalog) TransactionByTag(tag saga.TransactionType) (TransactionKind, bool) {
	for _, tk := range c.transactions {
		if tk.Tag == tag {
			return tk, true
		}
	}
	return TransactionKind{}, false
}

// Preparations returns the preparation kinds ordered by name.
func (c *Catalog) Preparations() []PreparationKind {
	return slices.Clone(c.preparations)
}

// PreparationKinds returns just the preparation kind names.
func (c *Catalog) PreparationKinds() []saga.PreparationKind {
	out := make([]saga.PreparationKind, len(c.preparations))
	for i, pk := range c.preparations {
		out[i] = pk.Name
	}
	return out
}

// Excludes reports whether kinds a and b may not be staged together.
func (c *Catalog) Excludes(a, b saga.PreparationKind) bool {
	_, ok := c.excludes[a][b]
	return ok
}

// ExclusionError reports a preparation refused because of a staged kind.
type ExclusionError struct {
	Kind          saga.PreparationKind
	Staged        saga.PreparationKind
	TransactionID string
}

func (e *ExclusionError) Error() string {
	return fmt.Sprintf("%s excluded by staged %s (transaction %s)", e.Kind, e.Staged, e.TransactionID)
}

// Conflict returns an *ExclusionError if p may not join staged, else nil.
func (c *Catalog) Conflict(staged *saga.PreparationLedger, p saga.Preparation) error {
	for _, other := range staged.All() {
		if c.Excludes(p.Kind, other.Kind) {
			return &ExclusionError{Kind: p.Kind, Staged: other.Kind, TransactionID: other.TransactionID}
		}
	}
	return nil
}

// KindError reports a preparation kind that its transaction type does not
// stage.
type KindError struct {
	Kind        saga.PreparationKind
	Transaction string
	Tag         saga.TransactionType
}

func (e *KindError) Error() string {
	if e.Transaction == "" {
		return fmt.Sprintf("%s preparation for unknown transaction type %d", e.Kind, e.Tag)
	}
	return fmt.Sprintf("%s transactions do not stage %s", e.Transaction, e.Kind)
}

// Allowed returns a *KindError unless p's transaction type lists p's kind.
func (c *Catalog) Allowed(p saga.Preparation) error {
	tk, ok := c.TransactionByTag(p.TransactionType)
	if !ok {
		return &KindError{Kind: p.Kind, Tag: p.TransactionType}
	}
	if !slices.Contains(tk.Preparations, p.Kind) {
		return &KindError{Kind: p.Kind, Transaction: tk.Name, Tag: tk.Tag}
	}
	return nil
}

// Policy returns an admission policy that only admits kinds listed for the
// transaction type and enforces the exclusions.
func (c *Catalog) Policy() saga.AdmissionPolicy {
	return saga.AdmitFunc(func(staged *saga.PreparationLedger, p saga.Preparation) error {
		if err := c.Allowed(p); err != nil {
			return err
		}
		return c.Conflict(staged, p)
	})
}

func (c *Catalog) hasPreparation(kind saga.PreparationKind) bool {
	for _, pk := range c.preparations {
		if pk.Name == kind {
			return true
		}
	}
	return false
}

func (c *Catalog) exclude(a, b saga.PreparationKind) {
	if c.excludes[a] == nil {
		c.excludes[a] = make(map[saga.PreparationKind]struct{})
	}
	c.excludes[a][b] = struct{}{}
}

func optionalString(v cue.Value, field string) (string, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return "", nil
	}
	s, err := fv.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

func kindList(v cue.Value) ([]saga.PreparationKind, error) {
	out := []saga.PreparationKind{}
	if !v.Exists() {
		return out, nil
	}
	iter, err := v.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		s, err := iter.Value().String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		if !slices.Contains(out, saga.PreparationKind(s)) {
			out = append(out, saga.PreparationKind(s))
		}
	}
	return out, nil
}

// formatCUEError keeps the first error and its position.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	first := errs[0]
	if positions := errors.Positions(first); len(positions) > 0 {
		return &LoadError{Field: "cue", Message: first.Error(), Pos: positions[0]}
	}
	return &LoadError{Field: "cue", Message: first.Error()}
}
