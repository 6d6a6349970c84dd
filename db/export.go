package db

import (
	"context"
	"encoding/json"
	"io"

	"github.com/blindspot/blindspot/common"
	"github.com/blindspot/blindspot/util"
	"github.com/ulikunitz/xz"
)

// Archive is the layout of an exported store
type Archive struct {
	Posts    []Document `json:"posts"`
	Messages []Document `json:"messages"`
}

// Export writes both collections as xz-compressed JSON to w
func Export(ctx context.Context, s Store, w io.Writer) (err error) {
	var a Archive
	err = util.Waterfall(
		func() (err error) {
			a.Posts, err = s.Dump(ctx, common.Posts)
			return
		},
		func() (err error) {
			a.Messages, err = s.Dump(ctx, common.Messages)
			return
		},
	)
	if err != nil {
		return
	}

	xw, err := xz.NewWriter(w)
	if err != nil {
		return
	}
	err = json.NewEncoder(xw).Encode(a)
	if err != nil {
		xw.Close()
		return
	}
	return xw.Close()
}

// ReadArchive decodes an archive written by Export
func ReadArchive(r io.Reader) (a Archive, err error) {
	xr, err := xz.NewReader(r)
	if err != nil {
		return
	}
	dec := json.NewDecoder(xr)
	dec.UseNumber()
	err = dec.Decode(&a)
	return
}
