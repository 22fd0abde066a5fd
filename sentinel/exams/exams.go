package exams

import (
	"sort"
	"strconv"
	"strings"

	"github.com/disgoorg/snowflake/v2"
	"github.com/sahilm/fuzzy"
)

// Code identifies one monitored CISIA exam calendar.
type Code string

// Wildcard subscribes a user to every exam.
const Wildcard Code = "ALL"

const (
	CEnTS   Code = "CEnT-S"
	TOLCAV  Code = "TOLC-AV"
	TOLCB   Code = "TOLC-B"
	TOLCE   Code = "TOLC-E"
	TOLCF   Code = "TOLC-F"
	TOLCI   Code = "TOLC-I"
	TOLCLP  Code = "TOLC-LP"
	TOLCPSI Code = "TOLC-PSI"
	TOLCS   Code = "TOLC-S"
	TOLCSPS Code = "TOLC-SPS"
	TOLCSU  Code = "TOLC-SU"
)

// Info carries the calendar query parameters for an exam.
type Info struct {
	Param  string
	Prefix string
}

var catalog = map[Code]Info{
	CEnTS:   {Param: "cents", Prefix: "CENT"},
	TOLCAV:  {Param: "agraria", Prefix: "TOLC"},
	TOLCB:   {Param: "biologia", Prefix: "TOLC"},
	TOLCE:   {Param: "economia", Prefix: "TOLC"},
	TOLCF:   {Param: "farmacia", Prefix: "TOLC"},
	TOLCI:   {Param: "ingegneria", Prefix: "TOLC"},
	TOLCLP:  {Param: "lauree_professionalizzanti", Prefix: "TOLC"},
	TOLCPSI: {Param: "psicologia", Prefix: "TOLC"},
	TOLCS:   {Param: "scienze", Prefix: "TOLC"},
	TOLCSPS: {Param: "scienze_politiche", Prefix: "TOLC"},
	TOLCSU:  {Param: "umanistica", Prefix: "TOLC"},
}

// All returns every exam code in sorted order. The ordering is stable
// so numeric selections in the command surface stay meaningful.
func All() []Code {
	codes := make([]Code, 0, len(catalog))
	for c := range catalog {
		codes = append(codes, c)
	}
	sort.Slice(codes, func(i, j int) bool { return codes[i] < codes[j] })
	return codes
}

func Valid(c Code) bool {
	if c == Wildcard {
		return true
	}
	_, ok := catalog[c]
	return ok
}

func (c Code) Info() Info {
	return catalog[c]
}

// Group binds an exam code to its Discord alert guild and channel.
type Group struct {
	Code      Code
	GuildID   snowflake.ID
	ChannelID snowflake.ID
}

// Directory is the static exam-to-channel mapping loaded from
// configuration. Read-only after construction.
type Directory struct {
	groups  map[Code]Group
	byGuild map[snowflake.ID]Code
	premium *Group
}

func NewDirectory(groups []Group, premium *Group) *Directory {
	d := &Directory{
		groups:  make(map[Code]Group, len(groups)),
		byGuild: make(map[snowflake.ID]Code, len(groups)),
	}
	for _, g := range groups {
		d.groups[g.Code] = g
		d.byGuild[g.GuildID] = g.Code
	}
	if premium != nil {
		p := *premium
		d.premium = &p
	}
	return d
}

func (d *Directory) Group(code Code) (Group, bool) {
	g, ok := d.groups[code]
	return g, ok
}

// Premium returns the donator-only group, if one is configured.
func (d *Directory) Premium() (Group, bool) {
	if d.premium == nil {
		return Group{}, false
	}
	return *d.premium, true
}

// GuildExam resolves a guild ID back to its exam code. Used by the
// membership enforcer when a join event arrives.
func (d *Directory) GuildExam(guildID snowflake.ID) (Code, bool) {
	c, ok := d.byGuild[guildID]
	return c, ok
}

func (d *Directory) IsPremiumGuild(guildID snowflake.ID) bool {
	return d.premium != nil && d.premium.GuildID == guildID
}

// Resolve interprets free-text exam selection: a 1-based index into the
// sorted listing, an exact code, or a fuzzy match as a fallback.
func Resolve(text string) (Code, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", false
	}

	all := All()

	if idx, err := strconv.Atoi(text); err == nil {
		if idx >= 1 && idx <= len(all) {
			return all[idx-1], true
		}
		return "", false
	}

	upper := strings.ToUpper(text)
	if upper == string(Wildcard) {
		return Wildcard, true
	}
	for _, c := range all {
		if upper == strings.ToUpper(string(c)) {
			return c, true
		}
	}

	names := make([]string, len(all))
	for i, c := range all {
		names[i] = string(c)
	}
	matches := fuzzy.Find(upper, names)
	if len(matches) == 0 {
		return "", false
	}
	return all[matches[0].Index], true
}
