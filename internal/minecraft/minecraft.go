package minecraft

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

const (
	ListCommand = "list"
	StopCommand = "stop"
)

var (
	listRe = regexp.MustCompile(`There are (\d+) of a max(?: of)? (\d+) players online:?\s*(.*)`)
	nameRe = regexp.MustCompile(`^[A-Za-z0-9_]{3,16}$`)
)

// PlayerList is the parsed reply to the list command.
type PlayerList struct {
	Online  int
	Max     int
	Players []string
}

func (p PlayerList) Has(name string) bool {
	for _, player := range p.Players {
		if strings.EqualFold(player, name) {
			return true
		}
	}
	return false
}

func ParsePlayerList(resp string) (PlayerList, error) {
	m := listRe.FindStringSubmatch(strings.TrimSpace(resp))
	if m == nil {
		return PlayerList{}, fmt.Errorf("unrecognized list reply %q", resp)
	}
	online, _ := strconv.Atoi(m[1])
	limit, _ := strconv.Atoi(m[2])
	list := PlayerList{Online: online, Max: limit, Players: []string{}}
	for _, name := range strings.Split(m[3], ",") {
		if name = strings.TrimSpace(name); name != "" {
			list.Players = append(list.Players, name)
		}
	}
	return list, nil
}

// ValidName reports whether name is a legal Java edition username.
func ValidName(name string) bool {
	return nameRe.MatchString(name)
}

// TellCommand whispers msg to a single player.
func TellCommand(player, msg string) string {
	return fmt.Sprintf("tell %s %s", player, msg)
}
