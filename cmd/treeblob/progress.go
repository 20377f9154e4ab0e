package main

import (
	"io"

	"github.com/cheggaaa/pb"

	"github.com/Ning0612/treeblob/internal/progress"
)

// newBarReporter draws one progress bar per transfer on w
func newBarReporter(w io.Writer) progress.Reporter {
	var bar *pb.ProgressBar

	return progress.NewCallbackReporter(func(u progress.Update) {
		switch u.Type {
		case progress.UpdateStart:
			total := u.Total
			if total < 0 {
				total = 0 // counter only
			}
			bar = pb.New64(total).SetUnits(pb.U_BYTES)
			bar.Output = w
			bar.ShowSpeed = true
			bar.Prefix(u.ID + " ")
			bar.Start()
		case progress.UpdateProgress:
			if bar != nil {
				bar.Set64(u.Bytes)
			}
		case progress.UpdateComplete:
			if bar != nil {
				bar.SetTotal64(u.Total)
				bar.Set64(u.Bytes)
				bar.Finish()
				bar = nil
			}
		case progress.UpdateError:
			if bar != nil {
				bar.FinishPrint(u.ID + " failed: " + u.Error.Error())
				bar = nil
			}
		}
	})
}
