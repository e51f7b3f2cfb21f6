// Package roomcast is a real-time bidirectional event-messaging engine:
// persistent client sessions multiplexed into namespaces and rooms, with
// broadcast routing, acknowledgment-correlated request/response, and
// horizontal scale-out over a shared Redis pub/sub backplane.
//
// # Quick start
//
//	server := roomcast.NewServer(nil, slog.Default())
//
//	server.OnConnect(func(socket *roomcast.Socket) {
//	    socket.Join("lobby")
//
//	    socket.On("message", func(args ...any) {
//	        socket.Broadcast().To("lobby").Emit("message", args...)
//	    })
//	})
//
//	http.Handle("/socket.io/", server)
//	http.ListenAndServe(":3000", nil)
//
// # Namespaces and rooms
//
// A namespace is an isolated partition: its own membership registry, its own
// admission middleware, its own backplane channel. Rooms are ephemeral
// groupings within one namespace; a room exists exactly as long as it has
// members, and joining twice is a no-op.
//
//	chat := server.Of("/chat")
//	chat.OnConnect(func(socket *roomcast.Socket) {
//	    socket.Join("room1")
//	})
//	chat.To("room1").Except(senderID).Emit("news", "hello others")
//
// Broadcasts report their local outcome: how many sockets resolved, how many
// were delivered to, and which were already gone. A dead target is counted,
// never raised.
//
// # Admission
//
// Middleware runs before any registry mutation; a rejection is all-or-nothing:
//
//	chat.Use(roomcast.RequireAuth(verifier))
//
// # Acknowledgments
//
// An acknowledgment-expecting emit blocks its caller until the peer replies
// or the timeout fires:
//
//	reply, err := socket.EmitWithAck(ctx, "question", 2*time.Second, "ready?")
//	if errors.Is(err, roomcast.ErrAckTimeout) {
//	    // peer never answered
//	}
//
// # Scale-out
//
// Multiple server processes share broadcasts through a Redis backplane. Each
// process delivers to its own local sockets and mirrors the event, tagged
// with its origin id, onto a channel per namespace; foreign events are
// replayed against local membership. A broker outage degrades to local-only
// delivery and never blocks the local path.
//
//	client, _ := roomcast.ConnectRedis(ctx, redisCfg)
//	server.UseRedisBackplane(ctx, client)
//
// # Reconnection
//
// The Supervisor type implements the client-side reconnection state machine
// with exponential, jittered backoff and a hard attempt limit.
package roomcast
