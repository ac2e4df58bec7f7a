// 一个无头客户端，用来连通性验证和手工观察同步行为：
// 连接服务端、加入房间、画一条笔画，然后把收到的消息打印出来。
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/HARSH-RAJ88/collaborative-canvas/internal/client"
	"github.com/HARSH-RAJ88/collaborative-canvas/internal/domain"
	"github.com/HARSH-RAJ88/collaborative-canvas/internal/protocol"
)

func main() {
	var (
		url      = flag.String("url", "ws://localhost:8080/ws", "server websocket endpoint")
		roomID   = flag.String("room", "", "room to join (empty: server generates one)")
		username = flag.String("user", "probe", "display name")
		draw     = flag.Bool("draw", false, "draw a test stroke after joining")
	)
	flag.Parse()

	c := client.NewClient(*url, *roomID, *username)
	c.OnMessage = func(msgType string, raw []byte) {
		logrus.WithField("type", msgType).Infof("<- %s", raw)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := c.Run(ctx); err != nil {
			logrus.WithError(err).Error("session ended")
		}
	}()

	if *draw {
		go func() {
			// 等加入完成再动笔
			time.Sleep(2 * time.Second)
			logrus.WithFields(logrus.Fields{
				"room": c.RoomID(),
				"rtt":  c.Monitor().Average(),
			}).Info("drawing test stroke")

			path := make([]domain.Point, 0, 20)
			for i := 0; i < 20; i++ {
				x, y := float64(100+i*5), float64(100+i*3)
				path = append(path, domain.Point{X: x, Y: y})
				c.QueueMove(protocol.DrawMove{
					Type: protocol.TypeDrawMove, Tool: "pen", Color: "#336699", Size: 3, X: x, Y: y,
				})
				time.Sleep(10 * time.Millisecond)
			}
			c.EndStroke(protocol.DrawEnd{
				Type: protocol.TypeDrawEnd, Tool: "pen", Color: "#336699", Size: 3,
				Path: path, StartX: path[0].X, StartY: path[0].Y,
			})
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
		c.Close()
		cancel()
		<-done
	case <-done:
	}
}
