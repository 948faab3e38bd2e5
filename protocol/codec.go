package protocol

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/encodeous/bfroute/state"
)

// Encode renders m in wire format. Decoded file segments are re-emitted byte
// for byte, so forwarded packets are never altered.
func Encode(m Message) []byte {
	switch m := m.(type) {
	case *RouteUpdate:
		sb := strings.Builder{}
		sb.WriteString(string(KindRouteUpdate))
		sb.WriteByte(' ')
		sb.WriteString(string(m.Source))
		for _, e := range m.Entries {
			sb.WriteByte(' ')
			sb.WriteString(string(e.Dest))
			sb.WriteByte(',')
			sb.WriteString(e.Cost.String())
			sb.WriteByte(',')
			sb.WriteString(string(e.Nh))
		}
		return []byte(sb.String())
	case *LinkUp:
		return []byte(string(KindLinkUp) + " " + string(m.From))
	case *LinkDown:
		return []byte(string(KindLinkDown) + " " + string(m.From))
	case *CostChange:
		return []byte(string(KindCostChange) + " " + string(m.From) + " " + m.Cost.String())
	case *FileSegment:
		if m.raw != nil {
			return m.raw
		}
		var buf bytes.Buffer
		buf.WriteString(m.Header())
		buf.WriteByte(' ')
		buf.WriteString(strconv.Itoa(m.Seq))
		if !m.EOF {
			buf.WriteByte(' ')
			buf.Write(m.Data)
		}
		return buf.Bytes()
	default:
		panic(fmt.Sprintf("unknown message type %T", m))
	}
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformed, fmt.Sprintf(format, args...))
}

func parseAddr(s string) (state.Addr, error) {
	a, err := state.ParseAddr(s)
	if err != nil {
		return "", malformed("bad address %q", s)
	}
	return a, nil
}

// Decode parses a datagram. Any unrecognized type or bad field yields an
// error wrapping ErrMalformed.
func Decode(pkt []byte) (Message, error) {
	kind, rest, _ := bytes.Cut(pkt, []byte{' '})
	switch Kind(kind) {
	case KindRouteUpdate:
		return decodeRouteUpdate(string(rest))
	case KindLinkUp, KindLinkDown:
		fields := strings.Fields(string(rest))
		if len(fields) != 1 {
			return nil, malformed("%s expects 1 field, got %d", kind, len(fields))
		}
		from, err := parseAddr(fields[0])
		if err != nil {
			return nil, err
		}
		if Kind(kind) == KindLinkUp {
			return &LinkUp{From: from}, nil
		}
		return &LinkDown{From: from}, nil
	case KindCostChange:
		fields := strings.Fields(string(rest))
		if len(fields) != 2 {
			return nil, malformed("c expects 2 fields, got %d", len(fields))
		}
		from, err := parseAddr(fields[0])
		if err != nil {
			return nil, err
		}
		cost, err := state.ParseCost(fields[1])
		if err != nil {
			return nil, malformed("bad cost %q", fields[1])
		}
		return &CostChange{From: from, Cost: cost}, nil
	case KindFile:
		return decodeFile(pkt)
	default:
		return nil, malformed("unknown type %q", kind)
	}
}

func decodeRouteUpdate(rest string) (*RouteUpdate, error) {
	fields := strings.Fields(rest)
	if len(fields) < 1 {
		return nil, malformed("ru without source")
	}
	src, err := parseAddr(fields[0])
	if err != nil {
		return nil, err
	}
	m := &RouteUpdate{Source: src, Entries: make([]VectorEntry, 0, len(fields)-1)}
	for _, triple := range fields[1:] {
		parts := strings.Split(triple, ",")
		if len(parts) != 3 {
			return nil, malformed("bad vector entry %q", triple)
		}
		dest, err := parseAddr(parts[0])
		if err != nil {
			return nil, err
		}
		cost, err := state.ParseCost(parts[1])
		if err != nil {
			return nil, malformed("bad cost in %q", triple)
		}
		nh, err := parseAddr(parts[2])
		if err != nil {
			return nil, err
		}
		m.Entries = append(m.Entries, VectorEntry{Dest: dest, Cost: cost, Nh: nh})
	}
	return m, nil
}

func decodeFile(pkt []byte) (*FileSegment, error) {
	// the payload is raw bytes and may itself contain spaces
	raw := bytes.Clone(pkt)
	fields := bytes.SplitN(raw, []byte{' '}, 6)
	if len(fields) < 5 {
		return nil, malformed("f expects at least 5 fields, got %d", len(fields))
	}
	dst, err := parseAddr(string(fields[1]))
	if err != nil {
		return nil, err
	}
	src, err := parseAddr(string(fields[2]))
	if err != nil {
		return nil, err
	}
	name := string(fields[3])
	if name == "" {
		return nil, malformed("empty filename")
	}
	seq, err := strconv.Atoi(string(fields[4]))
	if err != nil || seq < 0 {
		return nil, malformed("bad sequence number %q", fields[4])
	}
	m := &FileSegment{
		Dst:  dst,
		Src:  src,
		Name: name,
		Seq:  seq,
		raw:  raw,
	}
	if len(fields) == 6 {
		m.Data = fields[5]
	} else {
		m.EOF = true
	}
	return m, nil
}
