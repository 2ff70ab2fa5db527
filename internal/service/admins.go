package service

import "sort"

// Admins is the set of Telegram user IDs allowed to run admin operations
type Admins map[int64]struct{}

// NewAdmins builds an admin set from a list of IDs
func NewAdmins(ids []int64) Admins {
	a := make(Admins, len(ids))
	for _, id := range ids {
		if id != 0 {
			a[id] = struct{}{}
		}
	}
	return a
}

// Contains reports whether id is an admin
func (a Admins) Contains(id int64) bool {
	_, ok := a[id]
	return ok
}

// IDs returns the admin IDs in ascending order
func (a Admins) IDs() []int64 {
	ids := make([]int64, 0, len(a))
	for id := range a {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
