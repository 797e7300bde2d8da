package sensemaker

import (
	"errors"
	"fmt"

	"github.com/golang/glog"
	"github.com/pbaille/happz/internal/domain"
	"github.com/pbaille/happz/internal/replang"
	"github.com/pbaille/happz/internal/smpath"
	bolt "go.etcd.io/bbolt"
)

var (
	// ErrNoInit is returned when data is initialized under a path whose
	// SM_INIT has not been set.
	ErrNoInit = errors.New("SM_INIT not set")
	// ErrNoComp is returned when a path is stepped before its SM_COMP is set.
	ErrNoComp = errors.New("SM_COMP not set")
	// ErrNoData is returned when a target is stepped before it is initialized.
	ErrNoData = errors.New("SM_DATA not initialized")
	// ErrNoEntry is returned for an unknown entry hash.
	ErrNoEntry = errors.New("no such entry")
	// ErrUnknownTag is returned for tags other than SM_INIT, SM_COMP, SM_DATA.
	ErrUnknownTag = errors.New("unknown tag")
)

// Cell holds the scoring state of every path.
type Cell struct {
	store  *boltStore
	interp replang.Interpreter
}

// Open opens the sensemaker database at path.
func Open(path string, interp replang.Interpreter) (*Cell, error) {
	s, err := openStore(path)
	if err != nil {
		return nil, err
	}
	if interp == nil {
		interp = replang.Default
	}
	return &Cell{store: s, interp: interp}, nil
}

// Close closes the database.
func (c *Cell) Close() error {
	return c.store.close()
}

func checkTag(tag string) error {
	switch tag {
	case domain.SMInitTag, domain.SMCompTag, domain.SMDataTag:
		return nil
	}
	return fmt.Errorf("%q: %w", tag, ErrUnknownTag)
}

// Latest returns the current record under (path, tag).
func (c *Cell) Latest(path, tag string) (Record, bool, error) {
	if err := checkTag(tag); err != nil {
		return Record{}, false, err
	}
	return c.store.Latest(path, tag)
}

// History returns every record ever written under (path, tag).
func (c *Cell) History(path, tag string) ([]Record, error) {
	if err := checkTag(tag); err != nil {
		return nil, err
	}
	return c.store.History(path, tag)
}

// Entry returns the entry with the given hash.
func (c *Cell) Entry(eh domain.EntryHash) (domain.SensemakerEntry, error) {
	return c.store.Entry(eh)
}

// SetEntryParse evaluates expr and makes it the current entry under
// (path, tag).
func (c *Cell) SetEntryParse(author domain.AgentPubKey, path, tag, expr string) (Record, error) {
	if err := checkTag(tag); err != nil {
		return Record{}, err
	}
	v, err := c.interp.Eval(expr)
	if err != nil {
		return Record{}, fmt.Errorf("parse %s %s: %w", path, tag, err)
	}

	var r Record
	err = c.store.db.Update(func(tx *bolt.Tx) error {
		var err error
		r, err = c.store.appendRecord(tx, author, path, tag, domain.SensemakerEntry{Operator: expr, Output: v})
		return err
	})
	if err != nil {
		return Record{}, err
	}
	glog.V(1).Infof("[sm]set %s %s = %s\n", path, tag, v)
	return r, nil
}

// InitializeData seeds SM_DATA for target within path from path's SM_INIT.
// A target that already has data keeps it.
func (c *Cell) InitializeData(author domain.AgentPubKey, path, target string) (Record, error) {
	dataPath := smpath.Compose(path, target)

	var r Record
	err := c.store.db.Update(func(tx *bolt.Tx) error {
		if existing, ok, err := latest(tx, dataPath, domain.SMDataTag); err != nil {
			return err
		} else if ok {
			r = existing
			return nil
		}

		seed, ok, err := latest(tx, path, domain.SMInitTag)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("initialize %s: %w", dataPath, ErrNoInit)
		}

		r, err = c.store.appendRecord(tx, author, dataPath, domain.SMDataTag, domain.SensemakerEntry{
			Operator: seed.Entry.Operator,
			Operands: []domain.EntryHash{seed.EntryHash},
			Output:   seed.Entry.Output,
		})
		return err
	})
	if err != nil {
		return Record{}, err
	}
	glog.V(1).Infof("[sm]init %s = %s\n", dataPath, r.Entry.Output)
	return r, nil
}

// Step applies act to target's SM_DATA with path's SM_COMP:
// new = comp(data, act).
func (c *Cell) Step(author domain.AgentPubKey, path, target, act string) (Record, error) {
	dataPath := smpath.Compose(path, target)

	actValue, err := c.interp.Eval(act)
	if err != nil {
		return Record{}, fmt.Errorf("parse action for %s: %w", dataPath, err)
	}

	var r Record
	err = c.store.db.Update(func(tx *bolt.Tx) error {
		comp, ok, err := latest(tx, path, domain.SMCompTag)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("step %s: %w", dataPath, ErrNoComp)
		}
		data, ok, err := latest(tx, dataPath, domain.SMDataTag)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("step %s: %w", dataPath, ErrNoData)
		}

		actHash, err := putEntry(tx, domain.SensemakerEntry{Operator: act, Output: actValue})
		if err != nil {
			return err
		}

		next, err := c.interp.Apply(comp.Entry.Output, data.Entry.Output, actValue)
		if err != nil {
			return fmt.Errorf("step %s: %w", dataPath, err)
		}

		r, err = c.store.appendRecord(tx, author, dataPath, domain.SMDataTag, domain.SensemakerEntry{
			Operator: comp.Entry.Operator,
			Operands: []domain.EntryHash{comp.EntryHash, data.EntryHash, actHash},
			Output:   next,
		})
		return err
	})
	if err != nil {
		return Record{}, err
	}
	glog.V(1).Infof("[sm]step %s %s -> %s\n", dataPath, act, r.Entry.Output)
	return r, nil
}
