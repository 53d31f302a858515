// SPDX-License-Identifier: MIT

package epg

import (
	"encoding/xml"
	"fmt"
	"sort"

	"github.com/google/renameio/v2"
)

// xmltvTimeLayout is the XMLTV timestamp format with explicit offset.
const xmltvTimeLayout = "20060102150405 -0700"

type TV struct {
	XMLName   xml.Name    `xml:"tv"`
	Generator string      `xml:"generator-info-name,attr,omitempty"`
	Channels  []Channel   `xml:"channel"`
	Programs  []Programme `xml:"programme"`
}

type Channel struct {
	ID          string   `xml:"id,attr"`
	DisplayName []string `xml:"display-name"`
	Icon        *Icon    `xml:"icon,omitempty"`
}

type Icon struct {
	Src string `xml:"src,attr"`
}

type Programme struct {
	Start      string   `xml:"start,attr"`
	Stop       string   `xml:"stop,attr"`
	Channel    string   `xml:"channel,attr"`
	Title      Title    `xml:"title"`
	SubTitle   string   `xml:"sub-title,omitempty"`
	Desc       string   `xml:"desc,omitempty"`
	Icon       *Icon    `xml:"icon,omitempty"`
	Categories []string `xml:"category,omitempty"`
}

type Title struct {
	Lang  string `xml:"lang,attr,omitempty"`
	Value string `xml:",chardata"`
}

// BuildTV assembles the document from channel definitions and programs.
// Programs are sorted by (channel, start) for stable output.
func BuildTV(channels []Channel, programs []Program) *TV {
	tv := &TV{
		Generator: "teamcast",
		Channels:  channels,
		Programs:  make([]Programme, 0, len(programs)),
	}
	sorted := make([]Program, len(programs))
	copy(sorted, programs)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].ChannelID != sorted[j].ChannelID {
			return sorted[i].ChannelID < sorted[j].ChannelID
		}
		return sorted[i].Start.Before(sorted[j].Start)
	})
	for _, p := range sorted {
		prog := Programme{
			Start:      p.Start.Format(xmltvTimeLayout),
			Stop:       p.Stop.Format(xmltvTimeLayout),
			Channel:    p.ChannelID,
			Title:      Title{Value: p.Title},
			SubTitle:   p.Subtitle,
			Desc:       p.Description,
			Categories: p.Categories,
		}
		if p.Icon != "" {
			prog.Icon = &Icon{Src: p.Icon}
		}
		tv.Programs = append(tv.Programs, prog)
	}
	return tv
}

// WriteXMLTV marshals and writes the document atomically: readers polling the
// file never see a partial guide.
func WriteXMLTV(tv *TV, path string) error {
	out, err := xml.MarshalIndent(tv, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal xmltv: %w", err)
	}
	data := []byte(xml.Header + string(out) + "\n")
	if err := renameio.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write xmltv: %w", err)
	}
	return nil
}
