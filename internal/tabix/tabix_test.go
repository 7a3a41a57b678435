package tabix

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DyogenIBENS/FINSURF/internal/tabix/tabixtest"
)

var indexedRows = []string{
	"chr1\t10\t15\tleft",
	"chr1\t12\t30\twide",
	"chr1\t15\t20\tright",
	"chr2\t5\t6\tsolo",
}

func openIndexed(t *testing.T, format tabixtest.Index, header, rows []string) *Tabix {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data.bed.gz")
	tabixtest.Write(t, path, format, header, rows)

	ds, err := OpenTabix(path)
	require.NoError(t, err)
	t.Cleanup(func() { ds.Close() })
	return ds
}

func queryIDs(t *testing.T, ds Dataset, chrom string, start, end int64) []string {
	t.Helper()
	rows, err := ds.Query(chrom, QueryRegion(start, end))
	require.NoError(t, err)
	return ids(rows)
}

func TestTabix_Catalogue(t *testing.T) {
	ds := openIndexed(t, tabixtest.TBI, nil, indexedRows)

	assert.Equal(t, []string{"chr1", "chr2"}, ds.Catalogue().Names())
	assert.Equal(t, ChromPrefixed, ds.Catalogue().Mode())

	names, err := ReadCatalogue(ds.Path())
	require.NoError(t, err)
	assert.Equal(t, []string{"chr1", "chr2"}, names)
}

func TestTabix_BareCatalogue(t *testing.T) {
	ds := openIndexed(t, tabixtest.TBI, nil, []string{"1\t10\t20\ta", "X\t5\t6\tb"})

	assert.Equal(t, ChromBare, ds.Catalogue().Mode())
	name, ok := ds.Catalogue().Lookup("chrX")
	require.True(t, ok)
	assert.Equal(t, []string{"b"}, queryIDs(t, ds, name, 5, 6))
}

func TestTabix_HalfOpenQueries(t *testing.T) {
	for _, format := range []tabixtest.Index{tabixtest.TBI, tabixtest.CSI} {
		ds := openIndexed(t, format, nil, indexedRows)

		assert.Equal(t, []string{"left"}, queryIDs(t, ds, "chr1", 10, 11))
		assert.Equal(t, []string{"left", "wide"}, queryIDs(t, ds, "chr1", 14, 15))
		assert.Equal(t, []string{"wide", "right"}, queryIDs(t, ds, "chr1", 15, 16), "fan-out in file order")
		assert.Equal(t, []string{"wide"}, queryIDs(t, ds, "chr1", 29, 30))
		assert.Empty(t, queryIDs(t, ds, "chr1", 9, 10))
		assert.Empty(t, queryIDs(t, ds, "chr1", 30, 31))
		assert.Equal(t, []string{"solo"}, queryIDs(t, ds, "chr2", 5, 6))
		assert.Empty(t, queryIDs(t, ds, "chr2", 6, 7))
		assert.Empty(t, queryIDs(t, ds, "chr3", 5, 6))
	}
}

func TestTabix_CSICatalogue(t *testing.T) {
	ds := openIndexed(t, tabixtest.CSI, nil, indexedRows)

	info, err := ReadIndex(ds.Path())
	require.NoError(t, err)
	assert.Equal(t, ds.Path()+CSIIndexSuffix, info.Path)
	assert.Equal(t, []string{"chr1", "chr2"}, info.Names)
	assert.Equal(t, Layout{NameColumn: 1, BeginColumn: 2, EndColumn: 3, ZeroBased: true}, info.Layout)
}

func TestTabix_RowFields(t *testing.T) {
	ds := openIndexed(t, tabixtest.TBI, nil, []string{"chr1\t999999\t1000002\ta\tb\t0.7\tc\t0.3"})

	rows, err := ds.Query("chr1", QueryRegion(1000000, 1000001))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, Row{
		Chrom:  "chr1",
		Start:  999999,
		End:    1000002,
		Fields: []string{"chr1", "999999", "1000002", "a", "b", "0.7", "c", "0.3"},
	}, rows[0])
	assert.Equal(t, "0.3", rows[0].Last())
}

func TestTabix_RefAltHeader(t *testing.T) {
	// A header naming ref and alt columns makes bix return RefAltInterval rows.
	ds := openIndexed(t, tabixtest.TBI,
		[]string{"#chrom\tstart\tend\tref\talt\tts_score\tscore"},
		[]string{"chr1\t1000000\t1000001\tA\tG\t0.7\t0.3"})

	rows, err := ds.Query("chr1", QueryRegion(1000000, 1000001))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(1000000), rows[0].Start)
	assert.Equal(t, int64(1000001), rows[0].End)
	val, ok := rows[0].Field(6)
	require.True(t, ok)
	assert.Equal(t, "0.7", val)
	assert.Equal(t, "0.3", rows[0].Last())

	for _, start := range []int64{999999, 1000001} {
		rows, err := ds.Query("chr1", QueryRegion(start, start+1))
		require.NoError(t, err)
		assert.Empty(t, rows, "base %d", start)
	}
}

func TestTabix_HeaderOnlyDataset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.bed.gz")
	tabixtest.WriteBED(t, path, []string{"#chrom\tstart\tend\tname"}, nil)

	ds, err := Open(path)
	require.NoError(t, err)
	defer ds.Close()

	assert.Empty(t, ds.Catalogue().Names())
	rows, err := ds.Query("chr1", QueryRegion(10, 11))
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestTabix_RepeatedAndConcurrentQueries(t *testing.T) {
	ds := openIndexed(t, tabixtest.TBI, nil, indexedRows)

	for i := 0; i < 50; i++ {
		assert.Equal(t, []string{"wide", "right"}, queryIDs(t, ds, "chr1", 15, 16))
		assert.Equal(t, []string{"solo"}, queryIDs(t, ds, "chr2", 5, 6))
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				rows, err := ds.Query("chr1", QueryRegion(14, 15))
				assert.NoError(t, err)
				assert.Equal(t, []string{"left", "wide"}, ids(rows))
			}
		}()
	}
	wg.Wait()
}

func TestTabix_InvalidRegion(t *testing.T) {
	ds := openIndexed(t, tabixtest.TBI, nil, indexedRows)

	_, err := ds.Query("chr1", Region{Begin: 0, End: 1})
	var dsErr *DatasetError
	require.ErrorAs(t, err, &dsErr)
	assert.Equal(t, "query", dsErr.Op)
}

func TestOpen_RequiresIndex(t *testing.T) {
	path := filepath.Join(t.TempDir(), "regions.bed")
	require.NoError(t, os.WriteFile(path, []byte("chr1\t10\t20\tx\n"), 0644))

	_, err := Open(path)
	var dsErr *DatasetError
	require.ErrorAs(t, err, &dsErr)
	assert.ErrorIs(t, err, ErrNoIndex)
	assert.Equal(t, "open index", dsErr.Op)
}

func TestOpen_MissingFile(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing.bed.gz"))
	var dsErr *DatasetError
	require.ErrorAs(t, err, &dsErr)
	assert.Equal(t, "open", dsErr.Op)
}

func TestOpenOrLoad(t *testing.T) {
	dir := t.TempDir()

	plain := filepath.Join(dir, "regions.bed")
	require.NoError(t, os.WriteFile(plain, []byte("chr1\t10\t20\tx\n"), 0644))
	ds, loaded, err := OpenOrLoad(plain)
	require.NoError(t, err)
	defer ds.Close()
	assert.True(t, loaded)
	assert.IsType(t, &Memory{}, ds)
	assert.Equal(t, []string{"x"}, queryIDs(t, ds, "chr1", 10, 11))

	indexed := filepath.Join(dir, "regions.bed.gz")
	tabixtest.WriteBED(t, indexed, nil, []string{"chr1\t10\t20\ty"})
	ds2, loaded, err := OpenOrLoad(indexed)
	require.NoError(t, err)
	defer ds2.Close()
	assert.False(t, loaded)
	assert.IsType(t, &Tabix{}, ds2)
	assert.Equal(t, []string{"y"}, queryIDs(t, ds2, "chr1", 10, 11))
}
