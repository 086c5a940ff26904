package capture

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/zsiec/ccx"
)

// captionTap decodes CEA-608 and CEA-708 captions from SEI units on the
// ingest goroutine. It is not safe for concurrent use.
//
// CEA-608 pairs go to the decoders unfiltered: ccx.CEA608Decoder drops
// the immediate repeat of a doubled control code itself.
type captionTap struct {
	emit    func(*ccx.CaptionFrame)
	counter prometheus.Counter

	cea608 map[int]*ccx.CEA608Decoder
	cea708 map[int]*ccx.CEA708Service
	dtvcc  []byte
}

func newCaptionTap(emit func(*ccx.CaptionFrame), counter prometheus.Counter) *captionTap {
	t := &captionTap{
		emit:    emit,
		counter: counter,
		cea608:  make(map[int]*ccx.CEA608Decoder, 4),
		cea708:  make(map[int]*ccx.CEA708Service, 6),
	}
	for ch := 1; ch <= 4; ch++ {
		t.cea608[ch] = ccx.NewCEA608Decoder()
	}
	for svc := 1; svc <= 6; svc++ {
		t.cea708[svc] = ccx.NewCEA708Service()
	}
	return t
}

// process handles one SEI NAL unit, header byte included. Caption frame
// PTS values are in microseconds.
func (t *captionTap) process(sei []byte, tsMs int64) {
	cd := ccx.ExtractCaptions(sei)
	if cd == nil {
		return
	}
	pts := tsMs * 1000

	for _, pair := range cd.CC608Pairs {
		dec := t.cea608[pair.Channel]
		if dec == nil {
			continue
		}
		if text := dec.Decode(pair.Data[0], pair.Data[1]); text != "" {
			t.send(&ccx.CaptionFrame{PTS: pts, Text: text, Channel: pair.Channel, Regions: dec.StyledRegions()})
		}
	}

	for _, triplet := range cd.DTVCC {
		if triplet.Start {
			t.dtvcc = t.dtvcc[:0]
		} else if len(t.dtvcc) == 0 {
			continue
		}
		t.dtvcc = append(t.dtvcc, triplet.Data[0], triplet.Data[1])
		t.drainDTVCC(pts)
	}
}

// drainDTVCC decodes the buffered DTVCC packet once all of it has arrived.
func (t *captionTap) drainDTVCC(pts int64) {
	if len(t.dtvcc) < 1 {
		return
	}
	size := ccx.DTVCCPacketSize(t.dtvcc[0])
	if len(t.dtvcc) < size {
		return
	}
	for _, block := range ccx.ParseDTVCCPacket(t.dtvcc[:size]) {
		svc := t.cea708[block.ServiceNum]
		if svc == nil || !svc.ProcessBlock(block.Data) {
			continue
		}
		if text := svc.DisplayText(); text != "" {
			// CEA-708 service N is reported as channel N+6.
			t.send(&ccx.CaptionFrame{PTS: pts, Text: text, Channel: block.ServiceNum + 6, Regions: svc.StyledRegions()})
		}
	}
	// Pairs after a complete packet are ignored until the next start.
	t.dtvcc = t.dtvcc[:0]
}

func (t *captionTap) send(f *ccx.CaptionFrame) {
	t.counter.Inc()
	t.emit(f)
}
