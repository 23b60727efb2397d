package negotiation

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

var profileLevelRe = regexp.MustCompile(`profile-level-id=([0-9a-fA-F]{6})`)

// adaptProfileLevels rewrites every H.264 profile-level-id in the offer to
// the lowest local level of the same profile that is at least the offered
// level. Offers for which no such level exists are left as they are.
func adaptProfileLevels(offer string, local []string, logger *logrus.Entry) string {
	if len(local) == 0 {
		return offer
	}

	return profileLevelRe.ReplaceAllStringFunc(offer, func(m string) string {
		offered := strings.ToLower(m[len("profile-level-id="):])

		best, ok := lowestCompatible(offered, local)
		if !ok {
			logger.WithFields(logrus.Fields{
				"offered": offered,
				"local":   local,
			}).Warn("No local H.264 level can play offered profile")
			return m
		}

		if best != offered {
			logger.WithFields(logrus.Fields{
				"offered": offered,
				"local":   best,
			}).Debug("Substituting H.264 profile-level-id")
		}

		return "profile-level-id=" + best
	})
}

func lowestCompatible(offered string, local []string) (string, bool) {
	profile, level, ok := splitProfileLevel(offered)
	if !ok {
		return "", false
	}

	best := ""
	bestLevel := -1
	for _, l := range local {
		p, lv, ok := splitProfileLevel(strings.ToLower(l))
		if !ok || p != profile || lv < level {
			continue
		}
		if bestLevel == -1 || lv < bestLevel {
			best = strings.ToLower(l)
			bestLevel = lv
		}
	}

	return best, bestLevel != -1
}

// splitProfileLevel splits a profile-level-id into its profile part
// (profile_idc and constraint flags) and its numeric level.
func splitProfileLevel(id string) (string, int, bool) {
	if len(id) != 6 {
		return "", 0, false
	}
	level, err := strconv.ParseUint(id[4:], 16, 8)
	if err != nil {
		return "", 0, false
	}
	return id[:4], int(level), true
}
