// eos stands for 'enhanced os', it mostly supplies 'eos.Open', which opens
// either local paths or http(s) URLs as random-access files, so they
// can serve as the base of a patch.
package eos

import (
	"io"
	"net/url"
	"os"

	"github.com/itchio/rstream/eos/httpfile"
	"github.com/itchio/rstream/eos/option"
	"github.com/pkg/errors"
)

type File interface {
	io.Reader
	io.Closer
	io.ReaderAt

	Stat() (os.FileInfo, error)
}

var ErrUnsupportedScheme = errors.New("unsupported scheme")

func Open(name string, opts ...option.Option) (File, error) {
	settings := option.DefaultSettings()

	for _, opt := range opts {
		opt.Apply(settings)
	}

	u, err := url.Parse(name)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	switch u.Scheme {
	case "":
		f, err := os.Open(name)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		return f, nil
	case "http", "https":
		getURL := func() (string, error) {
			return name, nil
		}
		hf, err := httpfile.New(getURL, settings.HTTPClient)
		if err != nil {
			return nil, err
		}
		hf.Consumer = settings.Consumer
		hf.ReaderStaleThreshold = settings.ReaderStaleThreshold
		return hf, nil
	default:
		return nil, errors.Wrapf(ErrUnsupportedScheme, "opening %s", name)
	}
}
