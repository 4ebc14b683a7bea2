package streetsim

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/pkg/errors"
)

// ImportMatrix reads a square matrix in the text format: a header line
// "N Type" with Type one of i/u/f, followed by N*N whitespace-separated
// tokens in row-major order. A non-zero token becomes a street of that
// length (or length 1 when isAdj), nodes 0..N-1 are created either way.
func (g *Graph) ImportMatrix(fileName string, isAdj bool) error {
	file, err := os.Open(fileName)
	if err != nil {
		return errors.Wrapf(ErrInvalidInput, "cannot open %s: %v", fileName, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)
	scanner.Split(bufio.ScanWords)
	next := func() (string, bool) {
		if !scanner.Scan() {
			return "", false
		}
		return scanner.Text(), true
	}

	sideTok, ok := next()
	if !ok {
		return errors.Wrapf(ErrInvalidInput, "%s: missing matrix header", fileName)
	}
	side, err := strconv.ParseUint(sideTok, 10, 32)
	if err != nil {
		return errors.Wrapf(ErrInvalidInput, "%s: bad matrix side %q", fileName, sideTok)
	}
	typeTok, ok := next()
	if !ok {
		return errors.Wrapf(ErrInvalidInput, "%s: missing value type", fileName)
	}
	if typeTok != "i" && typeTok != "u" && typeTok != "f" {
		return errors.Wrapf(ErrInvalidInput, "%s: unknown value type %q", fileName, typeTok)
	}

	n := ID(side)
	g.nodes = make(map[ID]Node, n)
	g.streets = make(map[ID]*Street)
	g.adjacency = NewSparseMatrix[bool](n, n)
	for i := ID(0); i < n; i++ {
		g.nodes[i] = NewIntersection(i)
	}

	for k := ID(0); k < n*n; k++ {
		tok, ok := next()
		if !ok {
			return errors.Wrapf(ErrInvalidInput, "%s: expected %d values, got %d", fileName, n*n, k)
		}
		value, err := parseMatrixValue(tok, typeTok)
		if err != nil {
			return errors.Wrapf(err, "%s: value %d", fileName, k)
		}
		if value == 0 {
			continue
		}
		src, dst := k/n, k%n
		length := value
		if isAdj {
			length = 1
		}
		street := NewStreet(k, src, dst, WithLength(length))
		g.streets[k] = street
		if err := g.adjacency.InsertLinear(k, true); err != nil {
			return err
		}
	}
	if _, ok := next(); ok {
		return errors.Wrapf(ErrInvalidInput, "%s: more than %d values", fileName, n*n)
	}
	return nil
}

func parseMatrixValue(tok, valueType string) (float64, error) {
	switch valueType {
	case "i":
		v, err := strconv.ParseInt(tok, 10, 64)
		if err != nil {
			return 0, errors.Wrapf(ErrInvalidInput, "bad integer %q", tok)
		}
		if v < 0 {
			return 0, errors.Wrapf(ErrInvalidInput, "negative weight %d", v)
		}
		return float64(v), nil
	case "u":
		v, err := strconv.ParseUint(tok, 10, 64)
		if err != nil {
			return 0, errors.Wrapf(ErrInvalidInput, "bad unsigned %q", tok)
		}
		return float64(v), nil
	default:
		v, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			return 0, errors.Wrapf(ErrInvalidInput, "bad float %q", tok)
		}
		if v < 0 {
			return 0, errors.Wrapf(ErrInvalidInput, "negative weight %f", v)
		}
		return v, nil
	}
}

// ExportMatrix writes the adjacency matrix (isAdj, Type i, entries 1/0) or
// the street-length matrix (Type f) in the ImportMatrix format.
func (g *Graph) ExportMatrix(fileName string, isAdj bool) error {
	file, err := os.Create(fileName)
	if err != nil {
		return errors.Wrap(err, "cannot create file")
	}
	defer file.Close()

	w := bufio.NewWriter(file)
	defer w.Flush()

	n := g.adjacency.Rows()
	valueType := "f"
	if isAdj {
		valueType = "i"
	}
	fmt.Fprintf(w, "%d %s\n", n, valueType)
	for i := ID(0); i < n; i++ {
		for j := ID(0); j < n; j++ {
			if j > 0 {
				fmt.Fprint(w, " ")
			}
			if isAdj {
				if g.adjacency.Has(i, j) {
					fmt.Fprint(w, "1")
				} else {
					fmt.Fprint(w, "0")
				}
			} else {
				length := 0.0
				if street, ok := g.streets[i*n+j]; ok {
					length = street.Length()
				}
				fmt.Fprintf(w, "%f", length)
			}
		}
		fmt.Fprintln(w)
	}
	return nil
}

// ImportCoordinates reads "lat lon" per line; line i sets the coordinates
// of node i. The file must cover every node id.
func (g *Graph) ImportCoordinates(fileName string) error {
	file, err := os.Open(fileName)
	if err != nil {
		return errors.Wrapf(ErrInvalidInput, "cannot open %s: %v", fileName, err)
	}
	defer file.Close()

	maxID := ID(0)
	for id := range g.nodes {
		if id >= maxID {
			maxID = id + 1
		}
	}

	scanner := bufio.NewScanner(file)
	i := ID(0)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return errors.Wrapf(ErrInvalidInput, "%s: line %d: expected \"lat lon\"", fileName, i)
		}
		lat, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			return errors.Wrapf(ErrInvalidInput, "%s: line %d: bad latitude %q", fileName, i, fields[0])
		}
		lon, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return errors.Wrapf(ErrInvalidInput, "%s: line %d: bad longitude %q", fileName, i, fields[1])
		}
		if node, ok := g.nodes[i]; ok {
			node.SetCoords(orb.Point{lon, lat})
		}
		i++
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrap(err, "read coordinates")
	}
	if i < maxID {
		return errors.Wrapf(ErrInvalidInput, "%s: %d coordinate lines for %d nodes", fileName, i, maxID)
	}
	return nil
}

// ImportOSMNodes reads a ';'-separated CSV with header and columns
// id;lat;lon;highway. OSM ids are remapped to dense ids in file order;
// nodes tagged traffic_signals are remembered as signal candidates.
func (g *Graph) ImportOSMNodes(fileName string, verbose bool) error {
	file, err := os.Open(fileName)
	if err != nil {
		return errors.Wrapf(ErrInvalidInput, "cannot open %s: %v", fileName, err)
	}
	defer file.Close()

	if verbose {
		fmt.Printf("Scanning nodes...")
	}
	st := time.Now()

	reader := csv.NewReader(file)
	reader.Comma = ';'
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return errors.Wrapf(ErrInvalidInput, "%s: %v", fileName, err)
	}
	if len(records) == 0 {
		return errors.Wrapf(ErrInvalidInput, "%s: empty file", fileName)
	}
	nodeIndex := ID(len(g.nodes))
	for lineNum, record := range records[1:] {
		if len(record) < 4 {
			return errors.Wrapf(ErrInvalidInput, "%s: line %d: expected id;lat;lon;highway", fileName, lineNum+2)
		}
		osmID, err := strconv.ParseInt(record[0], 10, 64)
		if err != nil {
			return errors.Wrapf(ErrInvalidInput, "%s: line %d: bad id %q", fileName, lineNum+2, record[0])
		}
		lat, err := strconv.ParseFloat(record[1], 64)
		if err != nil {
			return errors.Wrapf(ErrInvalidInput, "%s: line %d: bad latitude %q", fileName, lineNum+2, record[1])
		}
		lon, err := strconv.ParseFloat(record[2], 64)
		if err != nil {
			return errors.Wrapf(ErrInvalidInput, "%s: line %d: bad longitude %q", fileName, lineNum+2, record[2])
		}
		node := NewIntersection(nodeIndex)
		node.SetCoords(orb.Point{lon, lat})
		g.nodes[nodeIndex] = node
		g.nodeMapping[osmID] = nodeIndex
		if record[3] == "traffic_signals" {
			g.signals[nodeIndex] = struct{}{}
		}
		nodeIndex++
	}
	if verbose {
		fmt.Printf("Done in %v\n\tNodes: %d\n", time.Since(st), len(g.nodes))
	}
	return nil
}

// ImportOSMEdges reads a ';'-separated CSV with header and columns
// u;v;length;oneway;highway;maxspeed;name. Rows with oneway=false yield
// both directed streets. Call BuildAdj afterwards to renumber street ids.
func (g *Graph) ImportOSMEdges(fileName string, verbose bool) error {
	file, err := os.Open(fileName)
	if err != nil {
		return errors.Wrapf(ErrInvalidInput, "cannot open %s: %v", fileName, err)
	}
	defer file.Close()

	if verbose {
		fmt.Printf("Scanning edges...")
	}
	st := time.Now()

	reader := csv.NewReader(file)
	reader.Comma = ';'
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return errors.Wrapf(ErrInvalidInput, "%s: %v", fileName, err)
	}
	if len(records) == 0 {
		return errors.Wrapf(ErrInvalidInput, "%s: empty file", fileName)
	}
	nextID := ID(0)
	for id := range g.streets {
		if id >= nextID {
			nextID = id + 1
		}
	}
	for lineNum, record := range records[1:] {
		if len(record) < 6 {
			return errors.Wrapf(ErrInvalidInput, "%s: line %d: expected u;v;length;oneway;highway;maxspeed;name", fileName, lineNum+2)
		}
		srcOSM, err := strconv.ParseInt(record[0], 10, 64)
		if err != nil {
			return errors.Wrapf(ErrInvalidInput, "%s: line %d: bad source id %q", fileName, lineNum+2, record[0])
		}
		dstOSM, err := strconv.ParseInt(record[1], 10, 64)
		if err != nil {
			return errors.Wrapf(ErrInvalidInput, "%s: line %d: bad target id %q", fileName, lineNum+2, record[1])
		}
		length, err := strconv.ParseFloat(record[2], 64)
		if err != nil || length < 0 {
			return errors.Wrapf(ErrInvalidInput, "%s: line %d: bad length %q", fileName, lineNum+2, record[2])
		}
		maxSpeed, err := strconv.ParseFloat(record[5], 64)
		if err != nil || maxSpeed <= 0 {
			maxSpeed = defaultOSMMaxSpeed
		}
		src, ok := g.nodeMapping[srcOSM]
		if !ok {
			return errors.Wrapf(ErrInvalidInput, "%s: line %d: unknown node %d", fileName, lineNum+2, srcOSM)
		}
		dst, ok := g.nodeMapping[dstOSM]
		if !ok {
			return errors.Wrapf(ErrInvalidInput, "%s: line %d: unknown node %d", fileName, lineNum+2, dstOSM)
		}
		pairs := [][2]ID{{src, dst}}
		if isFalsy(record[3]) {
			pairs = append(pairs, [2]ID{dst, src})
		}
		for _, pair := range pairs {
			street := NewStreet(nextID, pair[0], pair[1],
				WithLength(length),
				WithMaxSpeed(maxSpeed),
			)
			if err := g.AddStreet(street); err != nil {
				return errors.Wrapf(err, "%s: line %d", fileName, lineNum+2)
			}
			nextID++
		}
	}
	if verbose {
		fmt.Printf("Done in %v\n\tStreets: %d\n", time.Since(st), len(g.streets))
	}
	return nil
}

func isFalsy(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "false", "no", "0":
		return true
	}
	return false
}
