package unix

import (
	"fmt"
	"os/user"
	"strconv"
)

// accountGroups returns the group ids of the account uid belongs to
func accountGroups(uid uint32) ([]uint32, error) {
	u, err := user.LookupId(strconv.FormatUint(uint64(uid), 10))
	if err != nil {
		return nil, err
	}
	ids, err := u.GroupIds()
	if err != nil {
		return nil, err
	}
	return parseGroups(ids)
}

func parseGroups(ids []string) ([]uint32, error) {
	groups := make([]uint32, 0, len(ids))
	for _, id := range ids {
		gid, err := strconv.ParseUint(id, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid group id %q: %w", id, err)
		}
		groups = append(groups, uint32(gid))
	}
	return groups, nil
}

// LookupGroup resolves a group name or numeric id to a gid
func LookupGroup(name string) (uint32, error) {
	if gid, err := strconv.ParseUint(name, 10, 32); err == nil {
		return uint32(gid), nil
	}
	g, err := user.LookupGroup(name)
	if err != nil {
		return 0, err
	}
	gid, err := strconv.ParseUint(g.Gid, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid gid %q of group %s: %w", g.Gid, name, err)
	}
	return uint32(gid), nil
}
