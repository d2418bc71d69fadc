package registry

import (
	"github.com/INLOpen/obsbase/core"
)

// RegisterFoi records a FeatureOfInterest (spec §3 "created first time a
// system reports an observation for it"). Re-registering an identical UID
// is idempotent.
func (s *Store) RegisterFoi(foi core.FeatureOfInterest) (uint64, error) {
	if foi.UID != "" {
		if existingID, found, err := s.lookupFoiByUID(foi.UID); err != nil {
			return 0, err
		} else if found {
			return existingID, nil
		}
	}

	id, err := nextSequentialID(s.fois)
	if err != nil {
		return 0, err
	}
	foi.InternalID = id

	enc, err := encodeFoi(foi)
	if err != nil {
		return 0, err
	}
	if err := s.fois.Put(idKey(id), enc); err != nil {
		return 0, err
	}
	if foi.UID != "" {
		if err := s.foisByUID.Put(uidKey(foi.UID), idKey(id)); err != nil {
			return 0, err
		}
	}
	return id, nil
}

// GetFoi looks up a FeatureOfInterest by its internal id.
func (s *Store) GetFoi(id uint64) (core.FeatureOfInterest, bool, error) {
	v, found, err := s.fois.Get(idKey(id))
	if err != nil || !found {
		return core.FeatureOfInterest{}, found, err
	}
	foi, err := decodeFoi(v)
	return foi, true, err
}

// GetFoiByUID looks up a FeatureOfInterest by its unique string id.
func (s *Store) GetFoiByUID(uid string) (core.FeatureOfInterest, bool, error) {
	id, found, err := s.lookupFoiByUID(uid)
	if err != nil || !found {
		return core.FeatureOfInterest{}, found, err
	}
	return s.GetFoi(id)
}

// FoiExists reports whether id names a registered FeatureOfInterest. Used
// by obsstore to validate an observation's foiId back-reference
// (SPEC_FULL SUPPLEMENTED FEATURES #2, core.ErrUnknownFoi) without paying
// for a full decode.
func (s *Store) FoiExists(id uint64) (bool, error) {
	return s.fois.ContainsKey(idKey(id))
}

func (s *Store) lookupFoiByUID(uid string) (uint64, bool, error) {
	v, found, err := s.foisByUID.Get(uidKey(uid))
	if err != nil || !found {
		return 0, found, err
	}
	id, err := decodeIDKey(v)
	return id, true, err
}
