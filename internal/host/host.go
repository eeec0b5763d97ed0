// Package host binds a progression config to a live entity: it owns the
// entity's grade and named stats, advances the grade, applies upgrade rules
// and keeps every stat recalculated.
//
// A Host is single-threaded. Signals are delivered synchronously and may
// re-enter the host; grade advances requested while an advance is running
// (free grades granted by rules, upgrades from listeners) are queued and run
// afterwards in increasing grade order, so advancing never recurses.
package host

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/udisondev/gradestats/internal/progression"
	"github.com/udisondev/gradestats/internal/signal"
	"github.com/udisondev/gradestats/internal/stat"
)

var (
	ErrNilConfig          = errors.New("nil stats config")
	ErrUnknownStat        = errors.New("unknown stat")
	ErrConfigTypeMismatch = errors.New("config type mismatch")
	ErrCannotAfford       = errors.New("cannot afford upgrade")
	ErrModifierOwned      = errors.New("modifier attached to another stat")
)

var (
	_ stat.Host          = (*Host)(nil)
	_ progression.Target = (*Host)(nil)
)

// Payer pays for normal grade advances.
type Payer interface {
	CanAfford(amount float64) bool
	Spend(amount float64) bool
}

// Option configures a Host.
type Option func(*Host)

// WithPayer charges Config.UpgradeCostAt for every normal UpgradeGrade.
func WithPayer(p Payer) Option {
	return func(h *Host) { h.payer = p }
}

// WithLogger sets the host logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(h *Host) { h.logger = l }
}

// step is a run of queued one-grade advances.
type step struct {
	free  bool
	count int32
}

// Host is the live per-entity owner of grade state and stats.
type Host struct {
	kind   string
	cfg    *progression.Config
	cfgSub signal.Subscription

	grade int32
	stats map[string]*stat.Stat
	names []string

	gradeChanged  *signal.Signal[stat.GradeChange]
	configChanged *signal.Signal[*progression.Config]

	payer  Payer
	logger *slog.Logger

	advancing bool
	applying  bool
	queue     []step
}

// New creates a host at grade 0 bound to cfg. The host kind is cfg's kind;
// later configs must match it. Rules eligible at grade 0 are applied once.
func New(cfg *progression.Config, opts ...Option) (*Host, error) {
	if cfg == nil {
		return nil, ErrNilConfig
	}

	h := &Host{
		kind:          cfg.Kind(),
		stats:         make(map[string]*stat.Stat),
		gradeChanged:  signal.New[stat.GradeChange]("grade:" + cfg.Kind()),
		configChanged: signal.New[*progression.Config]("host-config:" + cfg.Kind()),
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}

	h.bind(cfg)

	h.advancing, h.applying = true, true
	err := cfg.ApplyUpgrade(0, h)
	h.advancing, h.applying = false, false
	h.Recalculate()
	err = errors.Join(err, h.drain())
	if err != nil {
		h.Close()
		return nil, fmt.Errorf("applying initial rules of %q: %w", cfg.Name(), err)
	}

	h.logger.Debug("stats host created",
		"kind", h.kind,
		"config", cfg.Name(),
		"stats", len(h.names))
	return h, nil
}

func (h *Host) Kind() string                { return h.kind }
func (h *Host) Config() *progression.Config { return h.cfg }
func (h *Host) Grade() int32                { return h.grade }
func (h *Host) MaxGrade() int32             { return h.cfg.MaxGrade() }

// Names returns stat names in creation order.
func (h *Host) Names() []string {
	return append([]string(nil), h.names...)
}

// GradeChanged returns the signal emitted after each one-grade advance,
// once rules are applied and stats recalculated.
func (h *Host) GradeChanged() *signal.Signal[stat.GradeChange] { return h.gradeChanged }

// ConfigChanged returns the signal emitted after a config swap or an
// authored update of the bound config.
func (h *Host) ConfigChanged() *signal.Signal[*progression.Config] { return h.configChanged }

// CanUpgrade reports whether a normal UpgradeGrade would advance.
func (h *Host) CanUpgrade() bool {
	if h.grade >= h.cfg.MaxGrade() {
		return false
	}
	if h.payer == nil {
		return true
	}
	return h.payer.CanAfford(h.cfg.UpgradeCostAt(h.grade + 1))
}

// UpgradeGrade advances the grade by one, paying the upgrade cost when the
// advance runs. At max grade it is a no-op returning nil. Rule failures at the
// new grade are returned joined; the advance itself is not rolled back.
func (h *Host) UpgradeGrade() error {
	if int64(h.grade)+h.pending() >= int64(h.cfg.MaxGrade()) {
		return nil
	}

	h.queue = append(h.queue, step{count: 1})
	return h.drain()
}

// GrantFreeGrades advances the grade by n without paying. Called from a rule
// during an advance, the grades are queued behind the current one.
// Grades past the max are dropped.
func (h *Host) GrantFreeGrades(n int32) {
	if n <= 0 {
		return
	}
	h.queue = append(h.queue, step{free: true, count: n})
	if err := h.drain(); err != nil {
		h.logger.Warn("free grade rules failed", "kind", h.kind, "err", err)
	}
}

// pending returns the number of queued one-grade advances.
func (h *Host) pending() int64 {
	var n int64
	for _, s := range h.queue {
		n += int64(s.count)
	}
	return n
}

// drain runs queued advances. Re-entrant calls return immediately; the
// outermost call processes everything queued meanwhile.
func (h *Host) drain() error {
	if h.advancing {
		return nil
	}
	h.advancing = true
	defer func() { h.advancing = false }()

	var errs []error
	for len(h.queue) > 0 {
		if h.grade >= h.cfg.MaxGrade() {
			h.logger.Debug("max grade reached, dropping queued advances",
				"kind", h.kind,
				"grade", h.grade,
				"dropped", h.pending())
			h.queue = nil
			break
		}

		free := h.queue[0].free
		if h.queue[0].count--; h.queue[0].count <= 0 {
			h.queue = h.queue[1:]
		}
		if err := h.advance(free); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// advance moves one grade up: pay, apply rules, recalculate, then signal.
// Stats mutated by rules are recalculated once after all rules ran.
func (h *Host) advance(free bool) error {
	next := h.grade + 1
	if !free && h.payer != nil {
		cost := h.cfg.UpgradeCostAt(next)
		if cost > 0 && !h.payer.Spend(cost) {
			return fmt.Errorf("%w: grade %d costs %.2f", ErrCannotAfford, next, cost)
		}
	}

	before := h.grade
	h.grade = next

	h.applying = true
	err := h.cfg.ApplyUpgrade(h.grade, h)
	h.applying = false
	if err != nil {
		h.logger.Warn("upgrade rules failed",
			"kind", h.kind,
			"grade", h.grade,
			"err", err)
	}

	h.Recalculate()

	h.logger.Debug("grade advanced",
		"kind", h.kind,
		"from", before,
		"to", h.grade,
		"free", free)
	h.gradeChanged.Emit(stat.GradeChange{Before: before, After: h.grade, Free: free})
	return err
}

// SetConfig swaps the bound config. cfg must be of the host's kind; on
// mismatch the host is left untouched. Every stat is rebound to cfg's
// entries and recalculated. Stats without an entry in cfg keep their
// modifiers over a zero base. The grade is clamped to cfg's max grade.
func (h *Host) SetConfig(cfg *progression.Config) error {
	if cfg == nil {
		return ErrNilConfig
	}
	if cfg.Kind() != h.kind {
		h.logger.Warn("config kind mismatch, swap refused",
			"host_kind", h.kind,
			"config", cfg.Name(),
			"config_kind", cfg.Kind())
		return fmt.Errorf("%w: host kind %q, config %q has kind %q",
			ErrConfigTypeMismatch, h.kind, cfg.Name(), cfg.Kind())
	}

	prev := h.cfg.Name()
	h.cfg.Changed().Unsubscribe(h.cfgSub)
	h.bind(cfg)
	h.clampGrade()
	h.Recalculate()

	h.logger.Info("stats config swapped",
		"kind", h.kind,
		"from", prev,
		"to", cfg.Name(),
		"grade", h.grade)
	h.configChanged.Emit(cfg)
	return nil
}

// bind subscribes to cfg updates and points every stat at cfg's entries.
func (h *Host) bind(cfg *progression.Config) {
	h.cfg = cfg
	h.cfgSub = cfg.Changed().Subscribe(h.onConfigUpdated)
	h.ensureStats(cfg)
	for _, name := range h.names {
		h.stats[name].SetBaseSource(h.baseSource(cfg, name))
	}
}

func (h *Host) baseSource(cfg *progression.Config, name string) stat.BaseSource {
	return func() float64 {
		return cfg.BaseValue(name, h.grade)
	}
}

func (h *Host) ensureStats(cfg *progression.Config) {
	for _, name := range cfg.Names() {
		if _, ok := h.stats[name]; ok {
			continue
		}
		h.stats[name] = stat.New(name, h.baseSource(cfg, name), h)
		h.names = append(h.names, name)
	}
}

func (h *Host) clampGrade() {
	if limit := h.cfg.MaxGrade(); h.grade > limit {
		h.logger.Warn("grade above config max, clamped",
			"kind", h.kind,
			"grade", h.grade,
			"max", limit)
		h.grade = limit
	}
}

// onConfigUpdated handles authored changes of the bound config.
func (h *Host) onConfigUpdated(cfg *progression.Config) {
	h.ensureStats(cfg)
	h.clampGrade()
	h.Recalculate()
	h.configChanged.Emit(cfg)
}

// Recalculate recalculates every stat.
func (h *Host) Recalculate() {
	for _, name := range h.names {
		h.stats[name].Calculate()
	}
}

// Stat returns the named stat.
func (h *Host) Stat(name string) (*stat.Stat, error) {
	s, ok := h.stats[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStat, name)
	}
	return s, nil
}

// Value returns the current value of the named stat.
func (h *Host) Value(name string) (float64, error) {
	s, err := h.Stat(name)
	if err != nil {
		return 0, err
	}
	return s.Value(), nil
}

// AttachModifier attaches m to the named stat and recalculates it, except
// while upgrade rules run. Attaching a modifier that is already on that stat
// is a no-op.
func (h *Host) AttachModifier(name string, m *stat.Modifier) error {
	s, err := h.Stat(name)
	if err != nil {
		return err
	}
	if owner := m.Owner(); owner != nil && owner != s {
		return fmt.Errorf("%w: %q is owned by %q", ErrModifierOwned, name, owner.Name())
	}

	if s.AddModifier(m) && !h.applying {
		s.Calculate()
	}
	return nil
}

// DetachModifier removes m from the named stat. Absent modifiers are a no-op.
func (h *Host) DetachModifier(name string, m *stat.Modifier) error {
	s, err := h.Stat(name)
	if err != nil {
		return err
	}
	if s.RemoveModifier(m) && !h.applying {
		s.Calculate()
	}
	return nil
}

// RemoveBySource detaches every modifier tagged with source from all stats.
func (h *Host) RemoveBySource(source string) int {
	total := 0
	for _, name := range h.names {
		s := h.stats[name]
		if n := s.RemoveBySource(source); n > 0 {
			total += n
			s.Calculate()
		}
	}
	return total
}

// Close detaches all modifiers and stops listening to config updates.
func (h *Host) Close() {
	h.cfg.Changed().Unsubscribe(h.cfgSub)
	for _, name := range h.names {
		h.stats[name].Clear()
	}
	h.queue = nil
}
