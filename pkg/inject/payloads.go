package inject

// Injected payloads. Each constant is a JavaScript function literal the
// bridge serializes into a self-invoking expression. Phase 1 installs just
// enough surface to observe authentication (window.AuthStore); Phase 2,
// gated on a successful auth, installs the full normalized contract
// (window.Store plus the window.WWebJS helpers).

// HideModuleScan patches the page's Error constructor so the module scan
// the legacy adapter performs does not leave a recognizable stack frame.
const HideModuleScan = `() => {
    const originalError = Error;
    window.originalError = originalError;
    Error = function (message) {
        const error = new originalError(message);
        const originalStack = error.stack;
        if (error.stack.includes('moduleRaid')) error.stack = originalStack + '\n    at https://web.whatsapp.com/vendors~lazy_loaded_low_priority_components.05e98054dbd60f980427.js:2:44';
        return error;
    };
}`

// ModuleScanSource reconstructs a module registry on legacy builds by
// injecting a probe chunk into the page's webpack loader and walking the
// module cache it hands back. Exposed as window.mR.
const ModuleScanSource = `function moduleRaid() {
    const mr = {
        mID: Math.random().toString(36).substring(7),
        mObj: {},
        findModule(query) {
            const results = [];
            for (const mKey of Object.keys(mr.mObj)) {
                const mod = mr.mObj[mKey];
                if (typeof mod === 'undefined' || mod === null) continue;
                if (typeof query === 'string') {
                    if (typeof mod.default === 'object' && mod.default !== null && query in mod.default) results.push(mod.default);
                    if (typeof mod === 'object' && query in mod) results.push(mod);
                } else if (typeof query === 'function') {
                    if (query(mod)) results.push(mod);
                }
            }
            return results;
        },
    };
    webpackChunkwhatsapp_web_client.push([
        [mr.mID], {}, (e) => {
            for (const moduleId of Object.keys(e.m)) {
                try { mr.mObj[moduleId] = e(moduleId); } catch (err) { /* some chunks refuse lazy eval */ }
            }
        },
    ]);
    return mr;
}`

// ExposeAuthStore wires window.AuthStore straight off the module registry.
// Modern builds only: window.require is already enumerable.
const ExposeAuthStore = `() => {
    window.AuthStore = {};
    window.AuthStore.AppState = window.require('WAWebSocketModel').Socket;
    window.AuthStore.Cmd = window.require('WAWebCmd').Cmd;
    window.AuthStore.Conn = window.require('WAWebConnModel').Conn;
    window.AuthStore.OfflineMessageHandler = window.require('WAWebOfflineHandler').OfflineMessageHandler;
    window.AuthStore.PairingCodeLinkUtils = window.require('WAWebAltDeviceLinkingApi');
    window.AuthStore.Base64Tools = window.require('WABase64');
    window.AuthStore.RegistrationUtils = {
        ...window.require('WAWebCompanionRegClientUtils'),
        ...window.require('WAWebAdvSignatureApi'),
        ...window.require('WAWebUserPrefsInfoStore'),
        ...window.require('WAWebSignalStoreApi'),
    };
}`

// ExposeLegacyAuthStore rebuilds the same window.AuthStore surface on
// pre-threshold builds by scanning the module cache. Receives the module
// scan source so the probe can be (re)installed in one round-trip.
const ExposeLegacyAuthStore = `(moduleRaidStr) => {
    eval('var moduleRaid = ' + moduleRaidStr);
    window.mR = moduleRaid();
    window.AuthStore = {};
    window.AuthStore.AppState = window.mR.findModule('Socket')[0].Socket;
    window.AuthStore.Cmd = window.mR.findModule('Cmd')[0].Cmd;
    window.AuthStore.Conn = window.mR.findModule('Conn')[0].Conn;
    window.AuthStore.OfflineMessageHandler = window.mR.findModule('OfflineMessageHandler')[0].OfflineMessageHandler;
    window.AuthStore.PairingCodeLinkUtils = window.mR.findModule('initializeAltDeviceLinking')[0];
    window.AuthStore.Base64Tools = window.mR.findModule('encodeB64')[0];
    window.AuthStore.RegistrationUtils = {
        ...window.mR.findModule('getCompanionWebClientFromBrowser')[0],
        ...window.mR.findModule('verifyKeyIndexListAccountSignature')[0],
        ...window.mR.findModule('waNoiseInfo')[0],
        ...window.mR.findModule('waSignalStore')[0],
    };
}`

// ExposeStore installs the full normalized domain surface on modern builds.
const ExposeStore = `() => {
    window.Store = Object.assign({}, window.require('WAWebCollections'));
    window.Store.AppState = window.require('WAWebSocketModel').Socket;
    window.Store.Cmd = window.require('WAWebCmd').Cmd;
    window.Store.Conn = window.require('WAWebConnModel').Conn;
    window.Store.User = window.require('WAWebUserPrefsMeUser');
    window.Store.MsgKey = window.require('WAWebMsgKey').default;
    window.Store.SendMessage = window.require('WAWebSendMsgChatAction');
    window.Store.SendSeen = window.require('WAWebUpdateUnreadChatAction');
    window.Store.ChatGetters = window.require('WAWebChatGetters');
    window.Store.ContactMethods = window.require('WAWebContactGetters');
    window.Store.GroupUtils = window.require('WAWebGroupCreateJob');
    window.Store.GroupParticipants = window.require('WAWebModifyParticipantsGroupAction');
    window.Store.WidFactory = window.require('WAWebWidFactory');
    window.Store.MediaPrep = window.require('WAWebPrepRawMedia');
    window.Store.MediaUpload = window.require('WAWebMediaMmsV4Upload');
    window.Store.DownloadManager = window.require('WAWebDownloadManager').downloadManager;
    window.Store.Settings = window.require('WAWebUserPrefsGeneral');
    window.Store.AddonReactionTable = window.require('WAWebAddonReactionTableMode').reactionTableMode;
    window.Store.QueryOrder = window.require('WAWebBizGatingUtils');
    window.Store.Socket = window.require('WADeprecatedSendIq');

    window.compareWwebVersions = (lOperand, operator, rOperand) => {
        if (!['>', '>=', '<', '<=', '='].includes(operator)) {
            throw new Error('Invalid comparison operator is provided');
        }
        if (typeof lOperand !== 'string' || typeof rOperand !== 'string') {
            throw new Error('A non-string WWeb version type is provided');
        }
        lOperand = lOperand.replace(/-beta$/, '');
        rOperand = rOperand.replace(/-beta$/, '');
        while (lOperand.length !== rOperand.length) {
            lOperand.length > rOperand.length
                ? rOperand = rOperand.concat('0')
                : lOperand = lOperand.concat('0');
        }
        lOperand = Number(lOperand.replace(/\./g, ''));
        rOperand = Number(rOperand.replace(/\./g, ''));
        return (
            operator === '>' ? lOperand > rOperand :
                operator === '>=' ? lOperand >= rOperand :
                    operator === '<' ? lOperand < rOperand :
                        operator === '<=' ? lOperand <= rOperand :
                            operator === '=' ? lOperand === rOperand :
                                false
        );
    };
}`

// ExposeLegacyStore rebuilds the same window.Store surface via the module
// scan on pre-threshold builds.
const ExposeLegacyStore = `() => {
    window.Store = Object.assign({}, window.mR.findModule(m => m.default && m.default.Chat)[0].default);
    window.Store.AppState = window.mR.findModule('Socket')[0].Socket;
    window.Store.Cmd = window.mR.findModule('Cmd')[0].Cmd;
    window.Store.Conn = window.mR.findModule('Conn')[0].Conn;
    window.Store.User = window.mR.findModule('getMaybeMeUser')[0];
    window.Store.MsgKey = window.mR.findModule((module) => module.default && module.default.fromString)[0].default;
    window.Store.SendMessage = window.mR.findModule('addAndSendMsgToChat')[0];
    window.Store.SendSeen = window.mR.findModule('sendSeen')[0];
    window.Store.WidFactory = window.mR.findModule('createWid')[0];
    window.Store.MediaPrep = window.mR.findModule('prepRawMedia')[0];
    window.Store.MediaUpload = window.mR.findModule('uploadMedia')[0];
    window.Store.DownloadManager = window.mR.findModule('downloadManager')[0].downloadManager;
    window.Store.Settings = window.mR.findModule('ChatlistPanelState')[0];
    window.Store.createOrUpdateReactionsModule = window.mR.findModule('createOrUpdateReactions')[0];
    window.Store.QueryOrder = window.mR.findModule('queryOrder')[0];
}`

// LoadUtils installs the window.WWebJS helper surface: serializers that
// flatten internal model instances into plain data plus a few convenience
// operations the host calls through the bridge.
const LoadUtils = `() => {
    window.WWebJS = {};

    window.WWebJS.getMessageModel = (message) => {
        const msg = message.serialize();
        msg.isEphemeral = message.isEphemeral;
        msg.isStatusV3 = message.isStatusV3;
        msg.links = (message.getRawLinks()).map((link) => ({
            link: link.href,
            isSuspicious: Boolean(link.suspiciousCharacters && link.suspiciousCharacters.size),
        }));
        if (msg.buttons) {
            msg.buttons = msg.buttons.serialize();
        }
        if (msg.dynamicReplyButtons) {
            msg.dynamicReplyButtons = JSON.parse(JSON.stringify(msg.dynamicReplyButtons));
        }
        if (msg.replyButtons) {
            msg.replyButtons = JSON.parse(JSON.stringify(msg.replyButtons));
        }
        if (typeof msg.id.remote === 'object') {
            msg.id = Object.assign({}, msg.id, { remote: msg.id.remote._serialized });
        }
        delete msg.pendingAckUpdate;
        return msg;
    };

    window.WWebJS.getChatModel = async (chat) => {
        const res = chat.serialize();
        res.isGroup = Boolean(chat.isGroup);
        res.isChannel = Boolean(chat.isNewsletter);
        res.formattedTitle = chat.formattedTitle;
        res.isMuted = chat.mute && chat.mute.isMuted;
        if (chat.groupMetadata) {
            const chatWid = window.Store.WidFactory.createWid(chat.id._serialized);
            await window.Store.GroupMetadata.update(chatWid);
            res.groupMetadata = chat.groupMetadata.serialize();
            res.participants = chat.groupMetadata.participants ? chat.groupMetadata.participants.serialize() : [];
        }
        res.lastMessage = null;
        if (res.msgs && res.msgs.length) {
            const lastMessage = chat.lastReceivedKey ? window.Store.Msg.get(chat.lastReceivedKey._serialized) : null;
            if (lastMessage) {
                res.lastMessage = window.WWebJS.getMessageModel(lastMessage);
            }
        }
        delete res.msgs;
        delete res.msgUnsyncedButtonReplyMsgs;
        delete res.unsyncedMsgs;
        return res;
    };

    window.WWebJS.getContactModel = (contact) => {
        const res = contact.serialize();
        res.isBusiness = Boolean(contact.isBusiness);
        if (contact.businessProfile) {
            res.businessProfile = contact.businessProfile.serialize();
        }
        res.isMe = Boolean(contact.isMe);
        res.isUser = Boolean(contact.isUser);
        res.isGroup = Boolean(contact.isGroup);
        res.isWAContact = Boolean(contact.isWAContact);
        res.isMyContact = Boolean(contact.isMyContact);
        res.isBlocked = Boolean(contact.isContactBlocked);
        return res;
    };

    window.WWebJS.getPollVoteModel = async (vote) => {
        const res = vote.serialize();
        if (!vote.parentMsgKey) return null;
        const msg = window.Store.Msg.get(vote.parentMsgKey) || (await window.Store.Msg.getMessagesById([vote.parentMsgKey])).messages[0];
        msg && (res.parentMessage = window.WWebJS.getMessageModel(msg));
        res.parentMsgKey = vote.parentMsgKey;
        return res;
    };

    window.WWebJS.sendSeen = async (chatId) => {
        const chat = window.Store.Chat.get(chatId);
        if (chat !== undefined) {
            await window.Store.SendSeen.sendSeen(chat, false);
            return true;
        }
        return false;
    };
}`
