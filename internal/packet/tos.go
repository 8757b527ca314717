package packet

import "fmt"

// AccessCategory is a Wi-Fi (802.11e) transmit queue.
type AccessCategory int

const (
	AccessCategoryVoice AccessCategory = iota
	AccessCategoryVideo
	AccessCategoryBestEffort
	AccessCategoryBackground
)

func (ac AccessCategory) String() string {
	switch ac {
	case AccessCategoryVoice:
		return "AC_VO"
	case AccessCategoryVideo:
		return "AC_VI"
	case AccessCategoryBestEffort:
		return "AC_BE"
	case AccessCategoryBackground:
		return "AC_BK"
	default:
		return fmt.Sprintf("AC(%d)", int(ac))
	}
}

// UserPriority returns the 802.1d user priority carried by the precedence
// bits of a TOS byte. Linux uses it as the socket priority that mac80211
// maps onto an access category.
func UserPriority(tos uint8) int {
	return int(tos&0xE0) >> 5
}

// AccessCategoryForTOS maps a TOS byte onto the queue mac80211 would pick.
func AccessCategoryForTOS(tos uint8) AccessCategory {
	switch UserPriority(tos) {
	case 1, 2:
		return AccessCategoryBackground
	case 0, 3:
		return AccessCategoryBestEffort
	case 4, 5:
		return AccessCategoryVideo
	default:
		return AccessCategoryVoice
	}
}
