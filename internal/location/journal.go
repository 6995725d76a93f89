package location

import "os"

// journalIndexRecordSize is the fixed size of one changelog index
// record: {rowOffset int64, rowLength int32}.
const journalIndexRecordSize = 12

// openChangelog determines a journal chunk's row count and sealed flag
// from its changelog index (spec §4.1, §12 "changelog-backed journal row
// count"), creating the index if it is missing. The index itself is
// maintained by internal/chunkbody's journal writer; here we only need
// to read it during a scan.
func openChangelog(dataPath, indexPath string, hasSealed bool) (rowCount int64, sealed bool, err error) {
	if indexPath == "" {
		indexPath = dataPath + indexSuffix
		if _, serr := os.Stat(indexPath); os.IsNotExist(serr) {
			f, cerr := os.OpenFile(indexPath, os.O_CREATE|os.O_WRONLY, 0o644)
			if cerr != nil {
				return 0, false, cerr
			}
			f.Close()
		}
	}

	info, err := os.Stat(indexPath)
	if err != nil {
		return 0, false, err
	}
	rowCount = info.Size() / journalIndexRecordSize
	return rowCount, hasSealed, nil
}
