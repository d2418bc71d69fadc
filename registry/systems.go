package registry

import (
	"github.com/INLOpen/obsbase/core"
)

// RegisterSystem records a System (spec §3 "created on registration").
// Re-registering an identical UID is idempotent: the existing internal id
// is returned unchanged rather than creating a second entry.
func (s *Store) RegisterSystem(sys core.System) (uint64, error) {
	if sys.UID != "" {
		if existingID, found, err := s.lookupSystemByUID(sys.UID); err != nil {
			return 0, err
		} else if found {
			return existingID, nil
		}
	}

	id, err := nextSequentialID(s.systems)
	if err != nil {
		return 0, err
	}
	sys.InternalID = id

	enc, err := encodeSystem(sys)
	if err != nil {
		return 0, err
	}
	if err := s.systems.Put(idKey(id), enc); err != nil {
		return 0, err
	}
	if sys.UID != "" {
		if err := s.systemsByUID.Put(uidKey(sys.UID), idKey(id)); err != nil {
			return 0, err
		}
	}
	return id, nil
}

// GetSystem looks up a System by its internal id.
func (s *Store) GetSystem(id uint64) (core.System, bool, error) {
	v, found, err := s.systems.Get(idKey(id))
	if err != nil || !found {
		return core.System{}, found, err
	}
	sys, err := decodeSystem(v)
	return sys, true, err
}

// GetSystemByUID looks up a System by its globally unique string id.
func (s *Store) GetSystemByUID(uid string) (core.System, bool, error) {
	id, found, err := s.lookupSystemByUID(uid)
	if err != nil || !found {
		return core.System{}, found, err
	}
	return s.GetSystem(id)
}

func (s *Store) lookupSystemByUID(uid string) (uint64, bool, error) {
	v, found, err := s.systemsByUID.Get(uidKey(uid))
	if err != nil || !found {
		return 0, found, err
	}
	id, err := decodeIDKey(v)
	return id, true, err
}
