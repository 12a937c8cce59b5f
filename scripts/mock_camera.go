//go:build ignore

package main

import (
	"bytes"
	"flag"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"log"
	"net/http"
	"sync"
	"time"
)

// Serves fake cameras on the ports camwatch scans: camera n streams on
// base+(n-1)*2 and captures on the port after it.
func main() {
	count := flag.Int("n", 2, "number of cameras")
	base := flag.Int("base", 10001, "first stream port")
	fps := flag.Int("fps", 5, "frames per second")
	flag.Parse()

	var wg sync.WaitGroup
	for i := 1; i <= *count; i++ {
		streamPort := *base + (i-1)*2
		cam := &mockCamera{id: i, start: time.Now()}

		streamMux := http.NewServeMux()
		streamMux.HandleFunc("/stream", cam.stream(*fps))
		captureMux := http.NewServeMux()
		captureMux.HandleFunc("/capture", cam.capture)

		for port, mux := range map[int]*http.ServeMux{streamPort: streamMux, streamPort + 1: captureMux} {
			wg.Add(1)
			go func(port int, mux *http.ServeMux) {
				defer wg.Done()
				log.Printf("camera%d listening on :%d", i, port)
				if err := http.ListenAndServe(fmt.Sprintf(":%d", port), mux); err != nil {
					log.Printf("camera%d port %d: %v", i, port, err)
				}
			}(port, mux)
		}
	}
	wg.Wait()
}

type mockCamera struct {
	id    int
	start time.Time
}

// frame draws a box that walks across the image.
func (c *mockCamera) frame() []byte {
	img := image.NewRGBA(image.Rect(0, 0, 320, 240))
	for i := range img.Pix {
		img.Pix[i] = 0x30
	}
	x := int(time.Since(c.start).Seconds()*40) % 280
	for dy := 0; dy < 80; dy++ {
		for dx := 0; dx < 40; dx++ {
			img.Set(x+dx, 100+dy, color.RGBA{R: uint8(60 * c.id), G: 180, B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	jpeg.Encode(&buf, img, &jpeg.Options{Quality: 80})
	return buf.Bytes()
}

func (c *mockCamera) stream(fps int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
		flusher, _ := w.(http.Flusher)
		// send headers now so discovery's status check does not wait for a frame
		w.WriteHeader(http.StatusOK)
		if flusher != nil {
			flusher.Flush()
		}
		ticker := time.NewTicker(time.Second / time.Duration(fps))
		defer ticker.Stop()
		for {
			select {
			case <-r.Context().Done():
				return
			case <-ticker.C:
			}
			data := c.frame()
			fmt.Fprintf(w, "--frame\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", len(data))
			w.Write(data)
			w.Write([]byte("\r\n"))
			if flusher != nil {
				flusher.Flush()
			}
		}
	}
}

func (c *mockCamera) capture(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodHead {
		w.WriteHeader(http.StatusOK)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Write(c.frame())
}
