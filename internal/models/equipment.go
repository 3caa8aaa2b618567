package models

// equipmentBundles expands shorthand equipment categories into the concrete
// equipment they imply. Unknown entries pass through unchanged.
var equipmentBundles = map[string][]string{
	"home-gym":       {"barbell", "dumbbell", "bench", "bodyweight"},
	"commercial-gym": {"barbell", "dumbbell", "machine", "cable", "bench", "kettlebell", "bodyweight"},
	"minimal":        {"band", "bodyweight"},
	"bodyweight":     {"bodyweight"},
}

// ExpandEquipment normalizes an equipment profile into the full set of
// available equipment. Bodyweight is always implicitly available. An empty
// profile expands to the commercial-gym bundle.
func ExpandEquipment(profile []string) map[string]bool {
	out := map[string]bool{"bodyweight": true}
	if len(profile) == 0 {
		profile = []string{"commercial-gym"}
	}
	for _, item := range profile {
		if bundle, ok := equipmentBundles[item]; ok {
			for _, eq := range bundle {
				out[eq] = true
			}
			continue
		}
		out[item] = true
	}
	return out
}
