package relay

// domainBindingsSource subscribes the exposed handlers to the page's
// observable collections. Message payloads cross the boundary already
// flattened by window.WWebJS.getMessageModel; chats are flattened by
// getChatModel so the host never sees live model instances.
//
// Reaction capture has no observable to subscribe to, so the write path is
// wrapped instead: the wrapper reports the batch and always calls through,
// never swallowing the original write. Which module owns the write path
// depends on the build line, forked on the page's own version comparator.
const domainBindingsSource = `() => {
    window.Store.Msg.on('change', (msg) => { window.onChangeMessageEvent(window.WWebJS.getMessageModel(msg)); });
    window.Store.Msg.on('change:type', (msg) => { window.onChangeMessageTypeEvent(window.WWebJS.getMessageModel(msg)); });
    window.Store.Msg.on('change:ack', (msg, ack) => { window.onMessageAckEvent(window.WWebJS.getMessageModel(msg), ack); });
    window.Store.Msg.on('change:isUnsentMedia', (msg, unsent) => { if (msg.id.fromMe && !unsent) window.onMessageMediaUploadedEvent(window.WWebJS.getMessageModel(msg)); });
    window.Store.Msg.on('remove', (msg) => { if (msg.isNewMsg) window.onRemoveMessageEvent(window.WWebJS.getMessageModel(msg)); });
    window.Store.Msg.on('change:body change:caption', (msg, newBody, prevBody) => { window.onEditMessageEvent(window.WWebJS.getMessageModel(msg), newBody, prevBody); });
    window.Store.Msg.on('add', (msg) => {
        if (msg.isNewMsg) {
            if (msg.type === 'ciphertext') {
                msg.once('change:type', (_msg) => window.onAddMessageEvent(window.WWebJS.getMessageModel(_msg)));
                window.onAddMessageCiphertextEvent(window.WWebJS.getMessageModel(msg));
            } else {
                window.onAddMessageEvent(window.WWebJS.getMessageModel(msg));
            }
        }
    });
    window.Store.AppState.on('change:state', (_AppState, state) => { window.onAppStateChangedEvent(state); });
    window.Store.Conn.on('change:battery', (state) => { window.onBatteryStateChangedEvent(state); });
    window.Store.Call.on('add', (call) => { window.onIncomingCall(call); });
    window.Store.Chat.on('remove', async (chat) => { window.onRemoveChatEvent(await window.WWebJS.getChatModel(chat)); });
    window.Store.Chat.on('change:archive', async (chat, currState, prevState) => { window.onArchiveChatEvent(await window.WWebJS.getChatModel(chat), currState, prevState); });
    window.Store.Chat.on('change:unreadCount', async (chat) => { window.onChatUnreadCountEvent(await window.WWebJS.getChatModel(chat)); });
    window.Store.PollVote.on('add', async (vote) => {
        const pollVoteModel = await window.WWebJS.getPollVoteModel(vote);
        pollVoteModel && window.onPollVoteEvent(pollVoteModel);
    });

    if (window.compareWwebVersions(window.Debug.VERSION, '>=', '2.3000.1014111620')) {
        const module = window.Store.AddonReactionTable;
        const ogMethod = module.bulkUpsert;
        module.bulkUpsert = ((...args) => {
            window.onReaction(args[0].map((reaction) => {
                const msgKey = reaction.id;
                const parentMsgKey = reaction.reactionParentKey;
                const timestamp = reaction.reactionTimestamp / 1000;
                const sender = reaction.author ?? reaction.from;
                const senderUserJid = sender._serialized;
                return { ...reaction, msgKey, parentMsgKey, senderUserJid, timestamp };
            }));
            return ogMethod(...args);
        }).bind(module);
    } else {
        const module = window.Store.createOrUpdateReactionsModule;
        const ogMethod = module.createOrUpdateReactions;
        module.createOrUpdateReactions = ((...args) => {
            window.onReaction(args[0].map((reaction) => {
                const msgKey = window.Store.MsgKey.fromString(reaction.msgKey);
                const parentMsgKey = window.Store.MsgKey.fromString(reaction.parentMsgKey);
                const timestamp = reaction.timestamp / 1000;
                return { ...reaction, msgKey, parentMsgKey, timestamp };
            }));
            return ogMethod(...args);
        }).bind(module);
    }
}`
