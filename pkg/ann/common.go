package ann

import "sort"

func sortNeighborsDesc(ns []Neighbor) {
	sort.Slice(ns, func(i, j int) bool { return ns[i].Score > ns[j].Score })
}
