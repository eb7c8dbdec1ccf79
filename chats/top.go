package chats

import "sort"

// ServiceTop lists the most subscribed channels of one service.
type ServiceTop struct {
	Service string
	// Channels is the number of distinct channels of the service.
	Channels int
	// Top holds channel ids, most subscribed first.
	Top []string
}

// Stats summarises all subscriptions.
type Stats struct {
	Chats    int
	Channels int
	Services []ServiceTop
}

// TopStats counts distinct chats and channels and ranks channels per service
// by subscriber count. Services are ordered by their channel count; ties keep
// first-seen order.
func TopStats(subs []Subscription, limit int) Stats {
	chats := make(map[int64]struct{})
	channels := make(map[string]struct{})
	var services []string
	perService := make(map[string]map[string]int)
	firstSeen := make(map[string]int)

	for i, s := range subs {
		chats[s.ChatID] = struct{}{}
		channels[s.ChannelID] = struct{}{}
		counts, ok := perService[s.Service]
		if !ok {
			counts = make(map[string]int)
			perService[s.Service] = counts
			services = append(services, s.Service)
		}
		if _, seen := firstSeen[s.ChannelID]; !seen {
			firstSeen[s.ChannelID] = i
		}
		counts[s.ChannelID]++
	}

	sort.SliceStable(services, func(i, j int) bool {
		return len(perService[services[i]]) > len(perService[services[j]])
	})

	stats := Stats{Chats: len(chats), Channels: len(channels)}
	for _, service := range services {
		counts := perService[service]
		ids := make([]string, 0, len(counts))
		for id := range counts {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool {
			if counts[ids[i]] != counts[ids[j]] {
				return counts[ids[i]] > counts[ids[j]]
			}
			return firstSeen[ids[i]] < firstSeen[ids[j]]
		})
		if limit > 0 && len(ids) > limit {
			ids = ids[:limit]
		}
		stats.Services = append(stats.Services, ServiceTop{Service: service, Channels: len(counts), Top: ids})
	}
	return stats
}
