package world

import (
	"hash/fnv"

	"golang.org/x/text/unicode/norm"
)

// HashName returns the lookup hash of an object name. Names are NFC
// normalised first so canonically equivalent spellings collide on purpose.
// The empty name hashes to 0.
func HashName(name string) uint64 {
	if name == "" {
		return 0
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(norm.NFC.String(name)))
	return h.Sum64()
}

func (w *World) indexName(id GameObjectID, hash uint64) {
	if hash == 0 {
		return
	}
	w.names[hash] = append(w.names[hash], id)
}

func (w *World) unindexName(id GameObjectID, hash uint64) {
	if hash == 0 {
		return
	}
	ids := w.names[hash]
	for i, v := range ids {
		if v == id {
			ids = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(ids) == 0 {
		delete(w.names, hash)
		return
	}
	w.names[hash] = ids
}

// FindByName returns the live objects carrying name, in creation order.
func (w *World) FindByName(name string) []GameObjectID {
	ids := w.names[HashName(name)]
	out := make([]GameObjectID, 0, len(ids))
	for _, id := range ids {
		if obj, ok := w.object(id); ok && obj.name == norm.NFC.String(name) {
			out = append(out, id)
		}
	}
	return out
}

// SetName renames an object.
func (w *World) SetName(id GameObjectID, name string) error {
	if err := w.checkStructural("SetName", func(w *World) { _ = w.SetName(id, name) }); err != nil {
		return err
	}
	obj, err := w.mustObject(id)
	if err != nil {
		return err
	}
	w.unindexName(id, obj.nameHash)
	obj.name = norm.NFC.String(name)
	obj.nameHash = HashName(name)
	w.indexName(id, obj.nameHash)
	return nil
}
