package kgraph

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/hashicorp/go-msgpack/v2/codec"
	"github.com/hashicorp/go-multierror"

	"github.com/kgraph/reasoner/internal/workerpool"
)

// msgpackHandle is shared by every encoder/decoder pair rather than
// constructed fresh per call.
var msgpackHandle = &codec.MsgpackHandle{}

// snapshotChunkSize bounds how many nodes' adjacency is buffered in one
// chunk, keeping peak memory proportional to a chunk rather than the
// whole graph.
const snapshotChunkSize = 4096

type snapshotHeader struct {
	SnapshotID   string
	LastAtom     uint64
	LastVar      uint64
	InternalLang string
	LeftChunks   int
	RightChunks  int
}

type edgeRecord struct {
	Node       uint64
	Neighbours []uint64
}

type probRecord struct {
	Key  uint64
	Prob float64
}

// Save writes a chunked binary snapshot of k to path, stamping a fresh
// SnapshotID header field. Promoted onto Reasoner via struct embedding.
func (k *Kernel) Save(path string) (err error) {
	f, ferr := os.Create(path)
	if ferr != nil {
		return fmt.Errorf("%w: creating %s: %v", ErrIO, path, ferr)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("%w: closing %s: %v", ErrIO, path, cerr)
		}
	}()

	nodes := k.allNodes()
	leftChunks := chunkNodeIDs(nodes, snapshotChunkSize)
	rightChunks := leftChunks // same partition; left/right differ only in which adjacency is read

	header := snapshotHeader{
		SnapshotID:   uuid.NewString(),
		InternalLang: k.names.internalLang,
		LeftChunks:   len(leftChunks),
		RightChunks:  len(rightChunks),
	}
	header.LastAtom, header.LastVar = func() (uint64, uint64) {
		a, v := k.allocCounters()
		return uint64(a), uint64(v)
	}()

	enc := codec.NewEncoder(f, msgpackHandle)
	if err := enc.Encode(header); err != nil {
		return fmt.Errorf("%w: encoding header: %v", ErrIO, err)
	}

	for _, chunk := range leftChunks {
		records := make([]edgeRecord, len(chunk))
		for i, n := range chunk {
			records[i] = edgeRecord{Node: uint64(n), Neighbours: toUint64s(k.LeftOf(n))}
		}
		if err := enc.Encode(records); err != nil {
			return fmt.Errorf("%w: encoding left chunk: %v", ErrIO, err)
		}
	}
	for _, chunk := range rightChunks {
		records := make([]edgeRecord, len(chunk))
		for i, n := range chunk {
			records[i] = edgeRecord{Node: uint64(n), Neighbours: toUint64s(k.RightOf(n))}
		}
		if err := enc.Encode(records); err != nil {
			return fmt.Errorf("%w: encoding right chunk: %v", ErrIO, err)
		}
	}

	probs := k.probabilitySnapshot()
	probRecords := make([]probRecord, 0, len(probs))
	for key, p := range probs {
		probRecords = append(probRecords, probRecord{Key: uint64(key), Prob: p})
	}
	if err := enc.Encode(probRecords); err != nil {
		return fmt.Errorf("%w: encoding probabilities: %v", ErrIO, err)
	}

	names := k.names.snapshotAll()
	nameRecords := make([]nameBinding, len(names))
	copy(nameRecords, names)
	if err := enc.Encode(nameRecords); err != nil {
		return fmt.Errorf("%w: encoding names: %v", ErrIO, err)
	}

	return nil
}

// Load reconstructs a Kernel from a snapshot previously written by
// Save. A header with an empty internal language (Save always fills
// it in) is loaded with "en".
func Load(path string) (*Kernel, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %v", ErrIO, path, err)
	}
	defer f.Close()

	dec := codec.NewDecoder(f, msgpackHandle)

	var header snapshotHeader
	if err := dec.Decode(&header); err != nil {
		return nil, fmt.Errorf("%w: decoding header: %v", ErrIO, err)
	}

	g := NewGraph()
	g.setAllocCounters(NodeID(header.LastAtom), NodeID(header.LastVar))

	var errs *multierror.Error

	for i := 0; i < header.LeftChunks; i++ {
		var records []edgeRecord
		if err := dec.Decode(&records); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("%w: decoding left chunk %d: %v", ErrIO, i, err))
			continue
		}
		for _, rec := range records {
			node := NodeID(rec.Node)
			g.ensureNode(node)
			for _, nb := range rec.Neighbours {
				n := NodeID(nb)
				g.ensureNode(n)
				g.restoreLeftNeighbour(node, n)
			}
		}
	}
	for i := 0; i < header.RightChunks; i++ {
		var records []edgeRecord
		if err := dec.Decode(&records); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("%w: decoding right chunk %d: %v", ErrIO, i, err))
			continue
		}
		for _, rec := range records {
			node := NodeID(rec.Node)
			g.ensureNode(node)
			for _, nb := range rec.Neighbours {
				n := NodeID(nb)
				g.ensureNode(n)
				g.restoreRightNeighbour(node, n)
			}
		}
	}

	var probRecords []probRecord
	if err := dec.Decode(&probRecords); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("%w: decoding probabilities: %v", ErrIO, err))
	}
	for _, rec := range probRecords {
		g.restoreProbabilityRaw(NodeID(rec.Key), rec.Prob)
	}

	if err := errs.ErrorOrNil(); err != nil {
		return nil, err
	}

	internalLang := header.InternalLang
	if internalLang == "" {
		internalLang = "en"
	}
	names := newNaming(internalLang)

	var nameRecords []nameBinding
	if err := dec.Decode(&nameRecords); err != nil {
		return nil, fmt.Errorf("%w: decoding names: %v", ErrIO, err)
	}
	for _, rec := range nameRecords {
		names.restore(rec.Node, rec.Name, rec.Lang)
	}

	k := &Kernel{Graph: g, names: names}
	if err := k.resolveCore(); err != nil {
		return nil, fmt.Errorf("kgraph: snapshot missing a core predicate: %w", err)
	}
	return k, nil
}

// LoadReasoner reconstructs a Reasoner from a snapshot, wiring the
// restored Kernel to a fresh worker pool and the options' logger/print
// sink the way New does for a from-scratch Reasoner.
func LoadReasoner(path string, opts ...Option) (*Reasoner, error) {
	cfg := defaultOptions()
	for _, o := range opts {
		o(cfg)
	}

	k, err := Load(path)
	if err != nil {
		return nil, err
	}

	r := &Reasoner{
		Kernel: k,
		pool:   workerpool.New(cfg.workers),
		log:    cfg.logger,
		print:  cfg.print,
	}
	r.unify = NewUnifier(k)
	return r, nil
}

// resolveCore re-derives Core from the restored naming table: the core
// predicates were named in the internal language at bootstrap, so a
// round-tripped snapshot can recover their ids without re-running
// NewKernel's own allocation (which would allocate distinct ids).
func (k *Kernel) resolveCore() error {
	lookup := func(name string) (NodeID, error) {
		if node, ok := k.names.GetNode(name, k.names.internalLang); ok {
			return node, nil
		}
		return Zero, fmt.Errorf("core predicate %q not found", name)
	}
	var err error
	if k.core.RelationTypeCategory, err = lookup("RelationTypeCategory"); err != nil {
		return err
	}
	if k.core.Causes, err = lookup("Causes"); err != nil {
		return err
	}
	if k.core.And, err = lookup("And"); err != nil {
		return err
	}
	if k.core.IsA, err = lookup("IsA"); err != nil {
		return err
	}
	if k.core.Unequal, err = lookup("Unequal"); err != nil {
		return err
	}
	if k.core.Contradiction, err = lookup("Contradiction"); err != nil {
		return err
	}
	return nil
}

func chunkNodeIDs(nodes []NodeID, size int) [][]NodeID {
	if len(nodes) == 0 {
		return nil
	}
	var chunks [][]NodeID
	for len(nodes) > 0 {
		if size > len(nodes) {
			size = len(nodes)
		}
		chunks = append(chunks, nodes[:size])
		nodes = nodes[size:]
	}
	return chunks
}

func toUint64s(nodes []NodeID) []uint64 {
	out := make([]uint64, len(nodes))
	for i, n := range nodes {
		out[i] = uint64(n)
	}
	return out
}
