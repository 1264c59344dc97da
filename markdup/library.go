package markdup

import (
	"github.com/grailbio/hts/sam"
)

const unknownLibrary = "Unknown Library"

// libraryIndex assigns compact integer ids to library names and maps
// records to their library through the header's read groups.
type libraryIndex struct {
	readGroupLibrary map[string]string
	readGroupOrdinal map[string]int16
	ids              map[string]int16
	names            []string
}

func newLibraryIndex(header *sam.Header) *libraryIndex {
	x := &libraryIndex{
		readGroupLibrary: make(map[string]string),
		readGroupOrdinal: make(map[string]int16),
		ids:              make(map[string]int16),
	}
	for i, rg := range header.RGs() {
		x.readGroupLibrary[rg.Name()] = rg.Library()
		x.readGroupOrdinal[rg.Name()] = int16(i)
	}
	return x
}

// libraryName returns the library for the record's read group, or
// "Unknown Library" when the read group or its library is undefined.
func (x *libraryIndex) libraryName(r *sam.Record) string {
	rg, found := getReadGroup(r)
	if !found {
		return unknownLibrary
	}
	library := x.readGroupLibrary[rg]
	if library == "" {
		return unknownLibrary
	}
	return library
}

// libraryID interns the record's library name.
func (x *libraryIndex) libraryID(r *sam.Record) int16 {
	name := x.libraryName(r)
	if id, found := x.ids[name]; found {
		return id
	}
	id := int16(len(x.names))
	x.ids[name] = id
	x.names = append(x.names, name)
	return id
}

// name returns the library name for a previously interned id.
func (x *libraryIndex) name(id int16) string {
	if int(id) >= len(x.names) {
		return unknownLibrary
	}
	return x.names[id]
}

// ordinal returns the read group's position in the header, or 0 when
// the record carries no read group.
func (x *libraryIndex) ordinal(r *sam.Record) int16 {
	rg, found := getReadGroup(r)
	if !found {
		return 0
	}
	return x.readGroupOrdinal[rg]
}
