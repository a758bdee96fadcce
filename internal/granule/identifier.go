package granule

import (
	"path"
	"strings"
	"time"

	"github.com/icefield/velocube/internal/errors"
)

// identifierDateFormat is the date layout used inside granule filenames,
// e.g. LC08_L1TP_011002_20150821_20170405_01_T1_X_LC08_L1TP_011002_20150720_20170406_01_T1_G0240V01_P038.nc
const identifierDateFormat = "20060102"

// Identifier is the parsed form of one candidate granule filename: the
// acquisition date, processing date and path/row of each source image.
type Identifier struct {
	URL string

	AcqDate1  time.Time
	ProcDate1 time.Time
	PathRow1  string

	AcqDate2  time.Time
	ProcDate2 time.Time
	PathRow2  string
}

// ParseIdentifier extracts the image-pair dates and path/rows from fixed
// token positions of the granule filename. A filename that does not carry
// all tokens is malformed and fatal for that identifier.
func ParseIdentifier(url string) (Identifier, error) {
	tokens := strings.Split(path.Base(url), "_")
	if len(tokens) < 13 {
		return Identifier{}, errors.Wrapf(errors.ErrMalformedIdentifier,
			"%d tokens in %q", len(tokens), url)
	}

	id := Identifier{
		URL:      url,
		PathRow1: tokens[2],
		PathRow2: tokens[10],
	}

	var err error
	if id.AcqDate1, err = time.Parse(identifierDateFormat, tokens[3]); err != nil {
		return Identifier{}, errors.Wrapf(errors.ErrMalformedIdentifier,
			"acquisition date 1 %q in %q", tokens[3], url)
	}
	if id.ProcDate1, err = time.Parse(identifierDateFormat, tokens[4]); err != nil {
		return Identifier{}, errors.Wrapf(errors.ErrMalformedIdentifier,
			"processing date 1 %q in %q", tokens[4], url)
	}
	if id.AcqDate2, err = time.Parse(identifierDateFormat, tokens[11]); err != nil {
		return Identifier{}, errors.Wrapf(errors.ErrMalformedIdentifier,
			"acquisition date 2 %q in %q", tokens[11], url)
	}
	if id.ProcDate2, err = time.Parse(identifierDateFormat, tokens[12]); err != nil {
		return Identifier{}, errors.Wrapf(errors.ErrMalformedIdentifier,
			"processing date 2 %q in %q", tokens[12], url)
	}

	return id, nil
}

// PairKey identifies the physical image pair independently of reprocessing:
// acquisition time and path/row of both images. Two identifiers with equal
// keys are reprocessing duplicates of each other.
func (id Identifier) PairKey() string {
	return strings.Join([]string{
		id.AcqDate1.Format(identifierDateFormat),
		id.PathRow1,
		id.AcqDate2.Format(identifierDateFormat),
		id.PathRow2,
	}, "_")
}
