package sieve

// StringList is a read cursor over a coded string list. It holds no
// persisted state; Reset rewinds it to the first item.
type StringList struct {
	program *Program
	start   Address
	end     Address
	count   int

	pos   Address
	index int

	// static holds items that are not read from code, such as the value of
	// a lone string operand.
	static []string
}

func readStringList(p *Program, addr *Address) (*StringList, error) {
	end, err := p.bin.ReadOffsetTarget(addr)
	if err != nil {
		return nil, err
	}
	count, err := p.bin.ReadInt(addr)
	if err != nil {
		return nil, err
	}
	if end < *addr {
		return nil, corruptf("string list ends at %08x before its items at %08x", int(end), int(*addr))
	}
	// Every item takes at least its length byte.
	if count < 0 || count > int(end-*addr) {
		return nil, corruptf("string list at %08x claims %d items in %d bytes", int(*addr), count, int(end-*addr))
	}
	l := &StringList{
		program: p,
		start:   *addr,
		end:     end,
		count:   count,
		pos:     *addr,
	}
	*addr = end
	return l, nil
}

// NewStringList returns a cursor over items held in memory.
func NewStringList(items ...string) *StringList {
	if items == nil {
		items = []string{}
	}
	return &StringList{count: len(items), static: items}
}

// Len returns the number of items in the list.
func (l *StringList) Len() int {
	return l.count
}

// Index returns the index of the item the next call to Next returns.
func (l *StringList) Index() int {
	return l.index
}

// Next returns the next item. ok is false once the list is exhausted.
func (l *StringList) Next() (item string, ok bool, err error) {
	if l.static != nil {
		if l.index >= len(l.static) {
			return "", false, nil
		}
		l.index++
		return l.static[l.index-1], true, nil
	}
	if l.index >= l.count {
		if l.pos != l.end {
			return "", false, corruptf("string list end %08x does not match contents ending at %08x", int(l.end), int(l.pos))
		}
		return "", false, nil
	}
	pos := l.pos
	s, err := l.program.bin.ReadString(&pos)
	if err != nil {
		return "", false, err
	}
	if pos > l.end {
		return "", false, corruptf("string list item at %08x runs past list end %08x", int(l.pos), int(l.end))
	}
	l.pos = pos
	l.index++
	return s, true, nil
}

// Reset rewinds the cursor to the first item.
func (l *StringList) Reset() {
	l.pos = l.start
	l.index = 0
}

// ReadAll returns the remaining items.
func (l *StringList) ReadAll() ([]string, error) {
	n := l.count - l.index
	if l.static == nil && n > int(l.end-l.pos) {
		n = int(l.end - l.pos)
	}
	items := make([]string, 0, max(n, 0))
	for {
		s, ok, err := l.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return items, nil
		}
		items = append(items, s)
	}
}
