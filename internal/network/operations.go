package network

import (
	mapset "github.com/deckarep/golang-set/v2"

	"github.com/David-Antunes/klonet/api"
)

// CheckEndpoints rejects self links and malformed endpoint addresses. Empty
// addresses are allowed.
func CheckEndpoints(src, dst, srcIP, dstIP string) error {
	if src == dst {
		return &api.SelfLinkError{Node: src}
	}
	for _, ip := range []string{srcIP, dstIP} {
		if ip == "" {
			continue
		}
		if _, _, err := ParseCIDR(ip); err != nil {
			return err
		}
	}
	return nil
}

// CheckParallelLink fails when an existing link joins the same unordered
// pair of nodes as the new one.
func CheckParallelLink(name, src, dst string, existing map[string]api.Link) error {
	pair := mapset.NewThreadUnsafeSet(src, dst)
	for _, l := range existing {
		if pair.Equal(mapset.NewThreadUnsafeSet(l.Source, l.Target)) {
			return &api.ParallelLinkError{
				Link:           name,
				Source:         src,
				Target:         dst,
				Existing:       l.Name,
				ExistingSource: l.Source,
				ExistingTarget: l.Target,
			}
		}
	}
	return nil
}

// NicNickname names the interface a link adds on node self.
func NicNickname(self, peer string) string {
	return self + peer
}

// AppendInterface records the interface a link endpoint adds on a node.
func AppendInterface(node *api.Node, peer, cidr string) error {
	ip, netmask, err := ParseCIDR(cidr)
	if err != nil {
		return err
	}
	node.Interfaces = append(node.Interfaces, api.Interface{
		IP:      ip,
		Netmask: netmask,
		Name:    NicNickname(node.Name, peer),
	})
	return nil
}

// RemoveInterface drops the interface the link to peer added on node.
func RemoveInterface(node *api.Node, peer string) {
	nick := NicNickname(node.Name, peer)
	kept := node.Interfaces[:0]
	for _, i := range node.Interfaces {
		if i.Name != nick {
			kept = append(kept, i)
		}
	}
	node.Interfaces = kept
}
